package game

// Static definitions for classes, enemies, abilities, locations, questions
// and scenarios. These stand in for the content service; rewards are looked
// up here, never computed.

type ClassDef struct {
	ID      string
	Name    string
	HP      int
	Mana    int
	Speed   int
	Attack  int
	Defense int
}

type AbilityDef struct {
	ID            string
	Name          string
	ManaCost      int
	Power         int
	CooldownTurns int
}

type EnemyDef struct {
	ID         string
	Name       string
	HP         int
	Speed      int
	Attack     int
	RewardGold int
	RewardXP   int
	Boss       bool
}

type ClueDef struct {
	ID   string
	Text string
}

type QuestionDef struct {
	ID     string
	Text   string
	ClueID string
}

type LocationDef struct {
	ID       string
	Name     string
	Links    []string
	Clues    []string // clue ids discoverable here, in order
	AmbushID string   // enemy id guarding this location, "" for none
}

type ScenarioOutcome struct {
	ID       string
	Text     string
	Gold     int
	XP       int
	ClueID   string // clue revealed to everyone on this outcome
	Fallback bool   // outcome when no option reaches the majority threshold
}

type ScenarioDef struct {
	ID       string
	Prompt   string
	Options  []ScenarioOption
	Outcomes map[string]ScenarioOutcome // choice id -> outcome
}

var Classes = map[string]ClassDef{
	"wanderer":  {ID: "wanderer", Name: "Wanderer", HP: 90, Mana: 30, Speed: 20, Attack: 12, Defense: 4},
	"occultist": {ID: "occultist", Name: "Occultist", HP: 70, Mana: 60, Speed: 14, Attack: 8, Defense: 2},
	"warden":    {ID: "warden", Name: "Warden", HP: 120, Mana: 20, Speed: 10, Attack: 10, Defense: 8},
	"shade":     {ID: "shade", Name: "Shade", HP: 75, Mana: 40, Speed: 24, Attack: 14, Defense: 3},
}

var Abilities = map[string]AbilityDef{
	"ember_bolt":   {ID: "ember_bolt", Name: "Ember Bolt", ManaCost: 10, Power: 18, CooldownTurns: 0},
	"veil_rend":    {ID: "veil_rend", Name: "Veil Rend", ManaCost: 25, Power: 34, CooldownTurns: 3},
	"mending_hymn": {ID: "mending_hymn", Name: "Mending Hymn", ManaCost: 15, Power: -20, CooldownTurns: 2},
}

var Enemies = map[string]EnemyDef{
	"goblin_scout":   {ID: "goblin_scout", Name: "Goblin Scout", HP: 30, Speed: 8, Attack: 6, RewardGold: 25, RewardXP: 40},
	"hollow_stalker": {ID: "hollow_stalker", Name: "Hollow Stalker", HP: 80, Speed: 16, Attack: 12, RewardGold: 60, RewardXP: 110},
	"ember_warden":   {ID: "ember_warden", Name: "Ember Warden", HP: 180, Speed: 12, Attack: 18, RewardGold: 250, RewardXP: 500, Boss: true},
}

var Clues = map[string]ClueDef{
	"torn_ledger":    {ID: "torn_ledger", Text: "A ledger page with the night warden's name struck out."},
	"ash_footprints": {ID: "ash_footprints", Text: "Footprints in the ash leading toward the chapel."},
	"brass_key":      {ID: "brass_key", Text: "A brass key stamped with the guild sigil."},
	"witness_note":   {ID: "witness_note", Text: "A note: the bell rang twice before the fire."},
}

var Questions = map[string]QuestionDef{
	"ask_whereabouts": {ID: "ask_whereabouts", Text: "Where were you when the bell rang?", ClueID: "witness_note"},
	"ask_ledger":      {ID: "ask_ledger", Text: "Whose name is missing from the ledger?", ClueID: "torn_ledger"},
	"ask_key":         {ID: "ask_key", Text: "Who holds the guild key?", ClueID: "brass_key"},
}

var Locations = map[string]LocationDef{
	"crossroads": {ID: "crossroads", Name: "Crossroads", Links: []string{"old_chapel", "guild_hall"}},
	"old_chapel": {ID: "old_chapel", Name: "Old Chapel", Links: []string{"crossroads", "crypt"}, Clues: []string{"ash_footprints"}},
	"guild_hall": {ID: "guild_hall", Name: "Guild Hall", Links: []string{"crossroads"}, Clues: []string{"torn_ledger", "brass_key"}},
	"crypt":      {ID: "crypt", Name: "Crypt", Links: []string{"old_chapel"}, Clues: []string{"witness_note"}, AmbushID: "hollow_stalker"},
}

const StartLocation = "crossroads"

var Scenarios = map[string]ScenarioDef{
	"bridge_toll": {
		ID:     "bridge_toll",
		Prompt: "A masked toll-keeper blocks the bridge and demands payment or a secret.",
		Options: []ScenarioOption{
			{ID: "pay", Text: "Pay the toll"},
			{ID: "secret", Text: "Trade a secret"},
			{ID: "force", Text: "Force your way through"},
		},
		Outcomes: map[string]ScenarioOutcome{
			"pay":    {ID: "paid_passage", Text: "The party pays and crosses unharmed.", Gold: -20},
			"secret": {ID: "traded_secret", Text: "The keeper trades a secret for a secret.", ClueID: "ash_footprints", XP: 30},
			"force":  {ID: "forced_crossing", Text: "The keeper yields, bruised and resentful.", XP: 50},
			"":       {ID: "standoff", Text: "The party argues until the keeper walks away.", Fallback: true},
		},
	},
}
