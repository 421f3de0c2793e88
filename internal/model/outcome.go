package model

// Outcome is one observed result for a named signal.
type Outcome struct {
	Signal    string `json:"signal"`
	Value     int    `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

type Snapshot struct {
	Signal          string  `json:"signal"`
	Precision       int     `json:"precision"`
	WarmupThreshold int     `json:"warmup_threshold"`
	Samples         int     `json:"samples"`
	Warmth          int     `json:"warmth"`
	Ones            int     `json:"ones"`
	Probability     float64 `json:"probability"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	Avg             float64 `json:"avg"`
	Warm            bool    `json:"warm"`
	Full            bool    `json:"full"`
	Winner          bool    `json:"winner"`
	Lately          bool    `json:"lately"`
	Diagnostic      string  `json:"diagnostic"`
	Register        string  `json:"register"`
	UpdatedAt       int64   `json:"updated_at"`
}

type TransitionKind string

const (
	TransitionWarm TransitionKind = "warm"
	TransitionFull TransitionKind = "full"
)

// Transition records a tracker latching warm or full.
type Transition struct {
	Signal    string         `json:"signal"`
	Kind      TransitionKind `json:"kind"`
	Samples   int            `json:"samples"`
	Timestamp int64          `json:"timestamp"`
}
