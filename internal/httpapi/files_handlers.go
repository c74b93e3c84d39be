package httpapi

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FilesHandler lists and serves harvest output files.
type FilesHandler struct {
	Dir string
}

var servedExt = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv; charset=utf-8",
	".json": "application/json",
}

func (h FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.Dir)
	if err != nil && !os.IsNotExist(err) {
		writeErr(w, r, err)
		return
	}
	out := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, ok := servedExt[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, fileInfo{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
			URL:      "/download/" + url.PathEscape(e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Modified.Equal(out[j].Modified) {
			return out[i].Modified.After(out[j].Modified)
		}
		return out[i].Name < out[j].Name
	})
	writeJSON(w, map[string]any{"files": out})
}

// Download expects /download/{name}. Only plain file names inside Dir are served.
func (h FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		WriteError(w, r, http.StatusBadRequest, "invalid_name", "invalid file name")
		return
	}
	ctype, ok := servedExt[strings.ToLower(filepath.Ext(name))]
	if !ok {
		WriteError(w, r, http.StatusNotFound, "not_found", "file not found")
		return
	}
	path := filepath.Join(h.Dir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			WriteError(w, r, http.StatusNotFound, "not_found", "file not found")
			return
		}
		writeErr(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		WriteError(w, r, http.StatusNotFound, "not_found", "file not found")
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}
