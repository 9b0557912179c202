package segment

// ModelRefusedError reports that the model answered with explanatory text
// but no image part, e.g. a safety refusal.
type ModelRefusedError struct {
	Reason string
}

func (e *ModelRefusedError) Error() string {
	return "model refused to return an image: " + e.Reason
}

// TransportError reports a network or protocol failure while talking to the
// Gemini API: a failed request, a non-200 status, or an unparseable response.
type TransportError struct {
	// Status is the HTTP status code, or 0 when the request never completed.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return "segmentation transport failure: " + e.Err.Error()
	}
	return "segmentation transport failure"
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
