package reviewable

// Score weighting. A contribution's weight is the actor's base weight plus a
// per-kind bonus, plus a fixed bonus when the flagger also took direct action
// (e.g. hid the post themselves while flagging).
const (
	baseWeight       = 4.0
	takeActionWeight = 2.0
)

// Flag kinds accepted by AddScore. Unknown kinds carry no bonus.
const (
	ScoreKindNeedsApproval = "needs_approval"
	ScoreKindSpam          = "spam"
	ScoreKindOffTopic      = "off_topic"
	ScoreKindInappropriate = "inappropriate"
	ScoreKindIllegal       = "illegal"
)

var kindBonus = map[string]float64{
	ScoreKindNeedsApproval: 1,
	ScoreKindSpam:          2,
	ScoreKindOffTopic:      0,
	ScoreKindInappropriate: 1,
	ScoreKindIllegal:       3,
}

// ContributionWeight computes the weight one actor's flag adds to an item.
func ContributionWeight(actor Actor, kind string, tookAction bool) float64 {
	w := baseWeight + actor.FlagWeightBonus + kindBonus[kind]
	if tookAction {
		w += takeActionWeight
	}
	return w
}
