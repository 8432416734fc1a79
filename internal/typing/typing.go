package typing

// Unit is the value carried by IOEither pipelines that only signal success.
type Unit = struct{}
