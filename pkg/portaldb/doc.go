// Package portaldb is a typed HTTP client for the Portal DB API.
//
// Each call performs exactly one HTTP round trip: the request body, when
// present, is encoded as JSON and a JSON response body is decoded into the
// caller's response type.
//
//	c, err := portaldb.New(portaldb.WithBaseURL("http://localhost:3000"))
//	if err != nil {
//		return err
//	}
//	resp, err := portaldb.Request[Health](ctx, c, http.MethodGet, "/health")
//	if err != nil {
//		var httpErr *portaldb.HTTPError
//		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
//			// handle 404
//		}
//		return err
//	}
//	if resp.Body != nil {
//		fmt.Println(resp.Body.Status)
//	}
//
// A nil Response.Body means the server answered with a non-JSON or empty
// body; it is never confused with a decoded empty object.
//
// Endpoints can be bound to request and response types once and reused:
//
//	var createItem = portaldb.NewEndpoint[Item, Item](http.MethodPost, "/items")
//	resp, err := portaldb.Call(ctx, c, createItem, &Item{Name: "x"})
//
// When the client is built WithSchema, every call is checked against the
// loaded OpenAPI document before any network I/O happens.
package portaldb
