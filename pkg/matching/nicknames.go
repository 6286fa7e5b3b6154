package matching

import (
	"regexp"
	"strings"
)

// nicknameMap maps a formal name to its common nicknames. Lookups are
// bidirectional and nicknames of the same formal name are treated as
// equivalent to each other.
var nicknameMap = map[string][]string{
	// Male names
	"alexander":   {"alex", "al", "xander", "lex", "sasha"},
	"andrew":      {"andy", "drew"},
	"anthony":     {"tony", "ant"},
	"benjamin":    {"ben", "benji", "benny"},
	"charles":     {"charlie", "chuck", "chas"},
	"christopher": {"chris", "topher", "kit"},
	"daniel":      {"dan", "danny"},
	"david":       {"dave", "davey"},
	"edward":      {"ed", "eddie", "ted", "teddy", "ned"},
	"eugene":      {"gene"},
	"frederick":   {"fred", "freddy", "rick", "fritz"},
	"gregory":     {"greg"},
	"harold":      {"harry", "hal"},
	"henry":       {"hank", "harry", "hal"},
	"jacob":       {"jake", "jack"},
	"james":       {"jim", "jimmy", "jamie", "jem"},
	"jason":       {"jay"},
	"jeffrey":     {"jeff"},
	"jerome":      {"jerry"},
	"john":        {"jack", "johnny", "jon"},
	"jonathan":    {"jon", "johnny", "nathan"},
	"joseph":      {"joe", "joey"},
	"joshua":      {"josh"},
	"lawrence":    {"larry", "lars"},
	"leonard":     {"leo", "lenny"},
	"matthew":     {"matt", "matty"},
	"michael":     {"mike", "mikey", "mick"},
	"nathaniel":   {"nate", "nathan", "nat"},
	"nicholas":    {"nick", "nicky"},
	"patrick":     {"pat", "paddy"},
	"peter":       {"pete"},
	"philip":      {"phil"},
	"raymond":     {"ray"},
	"richard":     {"rick", "ricky", "dick", "rich"},
	"robert":      {"rob", "robbie", "bob", "bobby", "bert"},
	"ronald":      {"ron", "ronnie"},
	"samuel":      {"sam", "sammy"},
	"stephen":     {"steve", "stevie"},
	"steven":      {"steve", "stevie"},
	"theodore":    {"ted", "teddy", "theo"},
	"thomas":      {"tom", "tommy"},
	"timothy":     {"tim", "timmy"},
	"walter":      {"walt", "wally"},
	"william":     {"will", "willy", "bill", "billy", "liam"},
	"zachary":     {"zach", "zack"},

	// Female names
	"abigail":   {"abby", "gail"},
	"alexandra": {"alex", "lexi", "sandra", "sasha"},
	"allison":   {"ally", "ali"},
	"amanda":    {"mandy", "amy"},
	"anastasia": {"ana", "stacy"},
	"angela":    {"angie"},
	"ann":       {"annie", "anna", "nan", "nancy"},
	"barbara":   {"barb", "barbie", "babs"},
	"beatrice":  {"bea", "trixie"},
	"bridget":   {"bridie", "biddy"},
	"caroline":  {"carol", "carrie"},
	"catherine": {"cathy", "kate", "katie", "cat", "kit", "kitty"},
	"charlotte": {"charlie", "lottie"},
	"christina": {"chris", "chrissy", "tina"},
	"christine": {"chris", "chrissy", "tina"},
	"cynthia":   {"cindy"},
	"deborah":   {"debbie", "deb"},
	"diana":     {"di"},
	"dorothy":   {"dot", "dottie", "dolly"},
	"eleanor":   {"ellie", "ella", "nell", "nelly"},
	"elizabeth": {"liz", "lizzy", "beth", "betty", "eliza", "ellie", "lisa", "bess", "bessie"},
	"emily":     {"em", "emmy"},
	"frances":   {"fran", "frannie"},
	"gabrielle": {"gabby", "gabi"},
	"gertrude":  {"gertie", "trudy"},
	"helen":     {"nell", "nelly", "ellie"},
	"jacqueline": {"jackie", "jacqui"},
	"jane":      {"janie", "jenny"},
	"janet":     {"jan"},
	"jennifer":  {"jen", "jenny", "jenn"},
	"jessica":   {"jess", "jessie"},
	"joan":      {"joanie"},
	"josephine": {"jo", "josie"},
	"judith":    {"judy", "judi"},
	"julia":     {"julie", "jules"},
	"karen":     {"kari"},
	"katherine": {"kate", "katie", "kathy", "kat", "kit", "kitty"},
	"kathleen":  {"kate", "kathy", "kat"},
	"kimberly":  {"kim", "kimmy"},
	"laura":     {"laurie"},
	"linda":     {"lindy"},
	"louise":    {"lou"},
	"lucy":      {"lu"},
	"margaret":  {"maggie", "meg", "marge", "margie", "peggy", "daisy", "rita"},
	"maria":     {"marie"},
	"martha":    {"marty", "mattie"},
	"mary":      {"mae", "molly", "polly", "mamie", "mitzi"},
	"melissa":   {"missy", "mel"},
	"nancy":     {"nan", "nanny"},
	"natalie":   {"nat", "natty"},
	"pamela":    {"pam", "pammy"},
	"patricia":  {"pat", "patty", "trish", "tricia"},
	"pauline":   {"polly"},
	"penelope":  {"penny"},
	"priscilla": {"prissy", "cilla"},
	"rachel":    {"rae"},
	"rebecca":   {"becky", "becca"},
	"rosemary":  {"rosie", "rose"},
	"samantha":  {"sam", "sammy"},
	"sandra":    {"sandy", "sadie"},
	"sarah":     {"sally", "sadie"},
	"sophia":    {"sophie"},
	"stephanie": {"steph", "stephie"},
	"susan":     {"sue", "susie", "suzy"},
	"suzanne":   {"sue", "susie", "suzy"},
	"teresa":    {"terry", "tess", "tessa"},
	"theresa":   {"terry", "tess", "tessa"},
	"valerie":   {"val"},
	"veronica":  {"ronnie", "roni"},
	"victoria":  {"vicky", "tori"},
	"virginia":  {"ginny", "ginger"},
	"vivian":    {"viv"},

	// Gender-neutral / Modern
	"armani":  {"aj", "mani"},
	"jordan":  {"jordy"},
	"taylor":  {"tay"},
	"cameron": {"cam"},
	"morgan":  {"mo"},
	"riley":   {"ri"},
	"casey":   {"case"},
	"avery":   {"ave"},
	"skyler":  {"sky"},
}

// nicknameIndex holds, for every known name, the set of names it is
// equivalent to. Built once at package init from nicknameMap.
var nicknameIndex = buildNicknameIndex()

func buildNicknameIndex() map[string]map[string]bool {
	index := make(map[string]map[string]bool, len(nicknameMap)*4)

	add := func(name, variant string) {
		set, ok := index[name]
		if !ok {
			set = make(map[string]bool)
			index[name] = set
		}
		set[variant] = true
	}

	for formal, nicks := range nicknameMap {
		add(formal, formal)
		for _, nick := range nicks {
			add(formal, nick)
			add(nick, formal)
			add(nick, nick)
			// nicknames of the same formal name are equivalent to each other
			for _, other := range nicks {
				add(nick, other)
			}
		}
	}

	return index
}

// AreNicknames reports whether two first names are known variants of each
// other, or close enough by prefix to treat as the same name.
func AreNicknames(name1, name2 string) bool {
	if name1 == "" || name2 == "" {
		return false
	}

	n1 := strings.ToLower(strings.TrimSpace(name1))
	n2 := strings.ToLower(strings.TrimSpace(name2))

	if n1 == n2 {
		return true
	}

	if set, ok := nicknameIndex[n1]; ok && set[n2] {
		return true
	}

	// single-letter initial against the full name
	if len(n1) == 1 && strings.HasPrefix(n2, n1) {
		return true
	}
	if len(n2) == 1 && strings.HasPrefix(n1, n2) {
		return true
	}

	// prefix of at least 2 chars where the shorter is at least half the longer
	if len(n1) >= 2 && strings.HasPrefix(n2, n1) && len(n1)*2 >= len(n2) {
		return true
	}
	if len(n2) >= 2 && strings.HasPrefix(n1, n2) && len(n2)*2 >= len(n1) {
		return true
	}

	return false
}

// GetNicknameVariants returns all known variants for a name, including the
// name itself.
func GetNicknameVariants(name string) []string {
	if name == "" {
		return nil
	}
	n := strings.ToLower(strings.TrimSpace(name))
	set, ok := nicknameIndex[n]
	if !ok {
		return []string{n}
	}
	variants := make([]string, 0, len(set))
	for v := range set {
		variants = append(variants, v)
	}
	return variants
}

var initialsPattern = regexp.MustCompile(`^[A-Z]{1,3}$`)

// CouldBeInitials reports whether potentialInitials looks like an initialism
// of fullName, e.g. "AJ" against "Armani".
func CouldBeInitials(potentialInitials, fullName string) bool {
	if potentialInitials == "" || fullName == "" {
		return false
	}

	initials := strings.ToUpper(potentialInitials)
	if !initialsPattern.MatchString(initials) {
		return false
	}

	return initials[0] == strings.ToUpper(fullName)[0]
}
