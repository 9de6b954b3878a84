// Package httpclient issues the GET requests that virtual users send.
//
// Two engines implement the same contract: [GetRequester] on net/http and
// [FastRequester] on fasthttp. Both return the response status code, read and
// discard the body, honour the caller's context and optionally inject W3C
// trace context headers.
//
//	client := httpclient.NewClient(30*time.Second, 64)
//	req, err := httpclient.NewGetRequester(client, "http://localhost:8080/", nil, false)
//	status, err := req.Do(ctx)
package httpclient
