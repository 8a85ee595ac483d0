package main

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed assets/gateway.v1.yaml assets/checkout_return.html
var assets embed.FS

var returnPage = template.Must(template.ParseFS(assets, "assets/checkout_return.html"))

type returnPageData struct {
	Title     string
	Mode      string
	SessionID string
	State     string
}

// checkoutReturnPage renders the page Stripe redirects the customer to. It
// acknowledges the return and polls the session status from the browser.
func checkoutReturnPage(mode string) http.HandlerFunc {
	title := "Payment authorized"
	if mode == "cancel" {
		title = "Payment canceled"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = returnPage.Execute(w, returnPageData{
			Title:     title,
			Mode:      mode,
			SessionID: r.URL.Query().Get("session_id"),
			State:     r.URL.Query().Get("state"),
		})
	}
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	data, err := assets.ReadFile("assets/gateway.v1.yaml")
	if err != nil {
		http.Error(w, "openapi not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(data)
}
