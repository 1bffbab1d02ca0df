package apiclient

import "net/url"

// getResource performs a GET request to the given path and decodes the response
// body into a value of type T.
func getResource[T any](c *Client, path string) (*T, error) {
	var result T
	if err := c.get(path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// listResources performs a GET request to the given path and decodes the response
// body into a slice of type T.
func listResources[T any](c *Client, path string) ([]T, error) {
	var results []T
	if err := c.get(path, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// postResource performs a POST request and decodes the response into T.
func postResource[T any](c *Client, path string, body any) (*T, error) {
	var result T
	if err := c.post(path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// updateResource performs a PUT request and decodes the response into T.
func updateResource[T any](c *Client, path string, body any) (*T, error) {
	var result T
	if err := c.put(path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// fsPath builds /api/v1/filesystems/{name}{suffix} with name escaped.
func fsPath(name, suffix string) string {
	return "/api/v1/filesystems/" + url.PathEscape(name) + suffix
}

// withPolicy appends the policy query parameter when set.
func withPolicy(path, policy string) string {
	if policy == "" {
		return path
	}
	return path + "?policy=" + url.QueryEscape(policy)
}
