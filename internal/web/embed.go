// Package web embeds the page that hosts the upload widget.
package web

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed dist/*
var staticFiles embed.FS

// GetFileSystem returns the embedded filesystem with the dist folder as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// RegisterStaticRoutes serves the page at / and its script under /static/.
// API routes are registered separately and take precedence.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}

	index, err := fs.ReadFile(staticFS, "index.html")
	if err != nil {
		return err
	}

	e.GET("/", func(c echo.Context) error {
		return c.HTMLBlob(http.StatusOK, index)
	})

	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		return err
	}
	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(assets)))
	e.GET("/static/*", echo.WrapHandler(fileServer))

	return nil
}

// HasEmbeddedFiles reports whether the page was embedded into the binary.
func HasEmbeddedFiles() bool {
	_, err := fs.Stat(staticFiles, "dist/index.html")
	return err == nil
}
