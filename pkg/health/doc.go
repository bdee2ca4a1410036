/*
Package health probes whether the Agrilo backend is reachable.

The backend serves a banner at the root of its origin, outside the /api
prefix. APIChecker derives that URL from the configured API base URL and
reports the outcome as a Result: reachable or not, the HTTP status, the
banner message and how long the probe took. A probe never returns an error;
failures are described in Result.Message.

	checker, err := health.NewAPIChecker(cfg.APIURL)
	if err != nil {
		return err
	}
	result := checker.WithTimeout(3 * time.Second).Check(ctx)
	if !result.Healthy {
		fmt.Println("backend unreachable:", result.Message)
	}
*/
package health
