// Package httpstages provides pipeline stages for HTTP requests and response handling.
//
// Use Get (a source) or Fetch to perform a GET request, ParseJSON or ParseJSONArray to
// decode the response body, and Expect to verify the parsed result and fail the run if
// it is not as expected.
//
// Example pipeline: GET url → ParseJSONArray → Expect(predicate)
//
//	p, err := pipeline.New("check-api", []pipeline.Stage{
//	    httpstages.Get(nil, "https://api.example.com/items"),
//	    httpstages.ParseJSONArray(),
//	    httpstages.Expect(func(v interface{}) error {
//	        m, _ := v.(map[string]interface{})
//	        if m["status"] != "ok" { return fmt.Errorf("unexpected status") }
//	        return nil
//	    }),
//	}, 100, store)
package httpstages
