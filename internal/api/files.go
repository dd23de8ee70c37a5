package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lalith-99/huddle/internal/blob"
)

// FileHandler serves objects of the filesystem blob store at the base URL
// its Put returns.
type FileHandler struct {
	store *blob.FileSystemStore
}

func NewFileHandler(store *blob.FileSystemStore) *FileHandler {
	return &FileHandler{store: store}
}

// Get handles GET /files/*key. In-progress temp files are never served.
func (h *FileHandler) Get(c *gin.Context) {
	p, err := h.store.Path(strings.TrimPrefix(c.Param("key"), "/"))
	if err != nil || strings.HasPrefix(filepath.Base(p), ".tmp-") {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(p)
}
