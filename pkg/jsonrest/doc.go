// Package jsonrest is a JSON HTTP client bound to one endpoint.
//
// Every call runs the same pipeline: the path and query are normalized,
// default and per-call headers are merged with the configured authentication,
// the request is issued through a bounded retry loop, and the response body is
// decoded as JSON when it parses.
//
// Failures are classified by a Classifier holding two lists. The propagate
// list is checked first and stops the loop; the retry list re-issues the same
// request until MaxAttempts is used up. Transport errors surface as
// *PropagatedError or *ExhaustedError. HTTP statuses are never errors: a 404 or
// an exhausted 503 comes back as a Response and callers check Code.
//
//	c, err := jsonrest.New("https://api.example.com",
//		jsonrest.WithTries(3),
//		jsonrest.WithBearerAuth(token),
//		jsonrest.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	resp, err := c.Get(ctx, "/users", jsonrest.Params{{Key: "page", Value: 2}}, nil)
//
// HTML and form requests are out of scope; GetHTML, PostForm and PutForm always
// fail with ErrUnsupported.
package jsonrest
