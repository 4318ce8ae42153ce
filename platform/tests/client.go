package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"form_platform/platform/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

// httpError preserves the response status so tests can assert on exact codes.
type httpError struct {
	Status  int
	Content string

	method   string
	endpoint string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%v request to endpoint %v returned status %d, content '%v'", e.method, e.endpoint, e.Status, e.Content)
}

// statusOf returns the http status of an error returned by Do, or 0 if the
// error did not come from an http response.
func statusOf(err error) int {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return &httpError{Status: res.StatusCode, Content: w.Body.String(), method: r.method, endpoint: r.endpoint}
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
	userId    uuid.UUID
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res struct {
		UserId      uuid.UUID `json:"user_id"`
		AccessToken string    `json:"access_token"`
	}
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.AccessToken
	c.userId = res.UserId

	return nil
}

func (c *client) createTemplate(req services.TemplateRequest) (services.TemplateInfo, error) {
	var res services.TemplateInfo
	err := c.Post("/template/create").Json(req).Do(&res)
	return res, err
}

func (c *client) updateTemplate(templateId uuid.UUID, req services.TemplateRequest) (services.TemplateInfo, error) {
	var res services.TemplateInfo
	err := c.Post(fmt.Sprintf("/template/%v/update", templateId)).Json(req).Do(&res)
	return res, err
}

func (c *client) getTemplate(templateId uuid.UUID) (services.TemplateInfo, error) {
	var res services.TemplateInfo
	err := c.Get(fmt.Sprintf("/template/%v", templateId)).Do(&res)
	return res, err
}

func (c *client) deleteTemplate(templateId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/template/%v", templateId)).Do(nil)
}

func (c *client) listTemplates(filter string) ([]services.TemplateInfo, error) {
	var res []services.TemplateInfo
	err := c.Get(fmt.Sprintf("/template/list?filter=%v", filter)).Do(&res)
	return res, err
}

func (c *client) searchTemplates(query string) ([]services.TemplateInfo, error) {
	var res []services.TemplateInfo
	err := c.Get(fmt.Sprintf("/template/search?q=%v", query)).Do(&res)
	return res, err
}

func (c *client) submitForm(templateId uuid.UUID, req services.SubmitRequest) (uuid.UUID, error) {
	var res map[string]uuid.UUID
	err := c.Post(fmt.Sprintf("/form/%v/submit", templateId)).Json(req).Do(&res)
	return res["form_id"], err
}

func (c *client) getResults(templateId uuid.UUID) (services.ResultsResponse, error) {
	var res services.ResultsResponse
	err := c.Get(fmt.Sprintf("/form/%v/results", templateId)).Do(&res)
	return res, err
}

func (c *client) setUserFlags(userId uuid.UUID, body map[string]interface{}) error {
	return c.Post(fmt.Sprintf("/user/%v/flags", userId)).Json(body).Do(nil)
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/user/info").Do(&res)
	return res, err
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/user/list").Do(&res)
	return res, err
}
