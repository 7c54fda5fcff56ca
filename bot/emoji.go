package bot

// Default reaction names. Slack names emoji without the surrounding colons.
const (
	DefaultApproveEmoji = "white_check_mark"
	DefaultRejectEmoji  = "x"
	unknownNumberEmoji  = "question"
)

var numberEmojis = [...]string{
	"one", "two", "three", "four", "five",
	"six", "seven", "eight", "nine", "keycap_ten",
}

// NumberEmoji returns the emoji showing n for 1..10 and a question mark otherwise.
func NumberEmoji(n int) string {
	if n >= 1 && n <= len(numberEmojis) {
		return numberEmojis[n-1]
	}
	return unknownNumberEmoji
}

// votingReactions is the set attached to a trigger message when a vote starts.
func votingReactions(approve, reject string, confirmCap int) []string {
	return []string{approve, reject, NumberEmoji(confirmCap)}
}
