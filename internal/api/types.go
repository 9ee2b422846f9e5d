package api

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}
