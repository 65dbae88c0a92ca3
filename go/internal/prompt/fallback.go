package prompt

// fallbackPrompts is the local corpus used whenever the remote quote API
// is unavailable.
var fallbackPrompts = []string{
	"Typing fast is not enough; accuracy wins the race.",
	"The only way to get better at typing is to keep typing every day.",
	"Consistent practice builds consistent performance.",
	"When your fingers flow with your thoughts, you've mastered typing.",
	"Each keystroke brings you closer to mastery.",
	"Speed follows rhythm, and rhythm follows repetition.",
	"A steady pace beats a frantic sprint over a long prompt.",
	"Look at the words, not at your hands.",
}
