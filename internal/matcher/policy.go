package matcher

// Policy centralizes the matcher's scoring thresholds, mirroring the way
// the teacher's content-identification stage keeps its confidence knobs in
// one normalized struct rather than scattering literals through the state
// machine.
type Policy struct {
	MinVideoDuration   float64
	ScoreFloor         float64
	EarlyExitTop       float64
	EarlyExitRunnerUp  float64
	MinTranscriptChars int
}

// DefaultPolicy returns the fixed thresholds from the matching contract.
func DefaultPolicy() Policy {
	return Policy{
		MinVideoDuration:   60,
		ScoreFloor:         0.6,
		EarlyExitTop:       0.92,
		EarlyExitRunnerUp:  0.80,
		MinTranscriptChars: 10,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MinVideoDuration <= 0 {
		p.MinVideoDuration = d.MinVideoDuration
	}
	if p.ScoreFloor <= 0 || p.ScoreFloor >= 1 {
		p.ScoreFloor = d.ScoreFloor
	}
	if p.EarlyExitTop <= 0 || p.EarlyExitTop >= 1 {
		p.EarlyExitTop = d.EarlyExitTop
	}
	if p.EarlyExitRunnerUp <= 0 || p.EarlyExitRunnerUp >= 1 {
		p.EarlyExitRunnerUp = d.EarlyExitRunnerUp
	}
	if p.MinTranscriptChars <= 0 {
		p.MinTranscriptChars = d.MinTranscriptChars
	}
	return p
}
