package engine

// Prompts is the pool a match draws from when start carries no prompt.
var Prompts = []string{
	"The quick brown fox jumps over the lazy dog.",
	"Pack my box with five dozen liquor jugs.",
	"How vexingly quick daft zebras jump.",
	"Sphinx of black quartz, judge my vow.",
	"The five boxing wizards jump quickly.",
	"Bright vixens jump; dozy fowl quack.",
	"Jackdaws love my big sphinx of quartz.",
	"A wizard's job is to vex chumps quickly in fog.",
	"Waltz, bad nymph, for quick jigs vex.",
	"Crazy Fredrick bought many very exquisite opal jewels.",
}
