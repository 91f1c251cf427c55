package enums

const (
	FeedbackHelpful    = "helpful"
	FeedbackNotHelpful = "notHelpful"
	FeedbackNeutral    = "neutral"
)

// KnownFeedback lists the tags offered by the post owner dashboard.
// Classification itself accepts any non-empty tag.
var KnownFeedback = []string{
	FeedbackHelpful,
	FeedbackNotHelpful,
	FeedbackNeutral,
}
