package keyservice

// Failure describes a key request that did not deliver a key.
type Failure struct {
	Kind    Kind
	Message string
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Message
}

// Result is the typed outcome of a key request. Exactly one of Key or
// Failure is meaningful.
type Result struct {
	Key     string
	Failure *Failure
}

// OK reports whether a key was delivered.
func (r Result) OK() bool { return r.Failure == nil }

// Err returns the failure as an error, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Text returns the raw response text exactly as the transport produced it.
func (r Result) Text() string {
	if r.Failure != nil {
		return r.Failure.Message
	}
	return r.Key
}

func newResult(text string) Result {
	kind := Classify(text)
	if kind == KindNone {
		return Result{Key: text}
	}
	return Result{Failure: &Failure{Kind: kind, Message: text}}
}
