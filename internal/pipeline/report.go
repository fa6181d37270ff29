package pipeline

import "fmt"

// Outcome tags the result of resolving one detected face.
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"    // matched an identity and the association was recorded
	OutcomeNoMatch    Outcome = "no_match"   // no collection face reached the threshold
	OutcomeUnresolved Outcome = "unresolved" // matched a face that has no identity
	OutcomeFailed     Outcome = "failed"     // search, identity lookup or association update failed
)

// FaceResult is the outcome for one detected face.
type FaceResult struct {
	FaceID        string  `json:"face_id"`
	Outcome       Outcome `json:"outcome"`
	MatchedFaceID string  `json:"matched_face_id,omitempty"`
	Similarity    float64 `json:"similarity,omitempty"`
	ContactKey    string  `json:"contact_key,omitempty"`
	Error         string  `json:"error,omitempty"`

	Err error `json:"-"`
}

func failed(faceID string, err error) FaceResult {
	return FaceResult{FaceID: faceID, Outcome: OutcomeFailed, Error: err.Error(), Err: err}
}

// Report summarizes one reconciliation run.
type Report struct {
	Collection string       `json:"collection"`
	PhotoKey   string       `json:"photo_key"`
	Detected   int          `json:"detected"`
	Matched    int          `json:"matched"`
	Results    []FaceResult `json:"results"`
}

func (r *Report) add(res FaceResult) {
	if res.Outcome == OutcomeMatched {
		r.Matched++
	}
	r.Results = append(r.Results, res)
}

// Count returns the number of results with the given outcome.
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r *Report) String() string {
	return fmt.Sprintf("matched %d of %d faces", r.Matched, r.Detected)
}
