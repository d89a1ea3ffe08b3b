package render

import (
	"bytes"
	"embed"
	"net/http"
	"time"
)

//go:embed assets/recaptcha.js
var assetsFS embed.FS

var assetsEpoch = time.Now()

// Script returns the embedded browser controller.
func Script() []byte {
	data, err := assetsFS.ReadFile("assets/recaptcha.js")
	if err != nil {
		// embed guarantees the file is present at build time
		panic(err)
	}
	return data
}

// ScriptHandler serves the browser controller with the right content type.
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		http.ServeContent(w, r, "recaptcha.js", assetsEpoch, bytes.NewReader(Script()))
	})
}
