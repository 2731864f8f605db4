package main

import (
	"net/http"
	"strconv"
)

// handleListVMs returns VMs filtered by ?status=&region=&q=.
// GET /api/vms
func (s *Server) handleListVMs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, s.console.ListVMs(VMFilter{Status: q.Get("status"), Region: q.Get("region"), Query: q.Get("q")}))
}

func (s *Server) handleGetVM(w http.ResponseWriter, r *http.Request) {
	vm, err := s.console.GetVM(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, vm)
}

func (s *Server) handleCreateVM(w http.ResponseWriter, r *http.Request) {
	var spec VMSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	vm, err := s.console.CreateVM(spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeCreated(w, vm)
}

// handleVMAction runs a power action.
// POST /api/vms/{id}/{start|stop|reboot}
func (s *Server) handleVMAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		vm  VM
		err error
	)
	switch r.PathValue("action") {
	case "start":
		vm, err = s.console.StartVM(id)
	case "stop":
		vm, err = s.console.StopVM(id)
	case "reboot":
		vm, err = s.console.RebootVM(id)
	default:
		http.Error(w, "Unknown action", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, vm)
}

func (s *Server) handleDeleteVM(w http.ResponseWriter, r *http.Request) {
	if err := s.console.DeleteVM(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.console.ListGroups())
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.console.GetGroup(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, g)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Rules       []Rule `json:"rules"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.console.CreateGroup(req.Name, req.Description, req.Rules)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeCreated(w, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.console.DeleteGroup(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule Rule
	if !decodeJSON(w, r, &rule) {
		return
	}
	rule, err := s.console.AddRule(r.PathValue("id"), rule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeCreated(w, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule Rule
	if !decodeJSON(w, r, &rule) {
		return
	}
	rule, err := s.console.UpdateRule(r.PathValue("id"), r.PathValue("rule"), rule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.console.DeleteRule(r.PathValue("id"), r.PathValue("rule")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.console.ListKeys())
}

// handleAddKey imports public_key when given, otherwise generates a pair.
// POST /api/keys
func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		PublicKey string `json:"public_key"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PublicKey != "" {
		k, err := s.console.ImportKey(req.Name, req.PublicKey)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeCreated(w, k)
		return
	}
	k, err := s.console.GenerateKey(req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeCreated(w, k)
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := s.console.DeleteKey(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.console.ListTemplates(r.URL.Query().Get("category")))
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.console.GetTemplate(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, t)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in TemplateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	t, err := s.console.CreateTemplate(in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeCreated(w, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var in TemplateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	t, err := s.console.UpdateTemplate(r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.console.DeleteTemplate(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (s *Server) handleRenderTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Values map[string]string `json:"values"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.console.RenderTemplate(r.PathValue("id"), req.Values)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"command": out})
}

func (s *Server) handleListManifests(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, list)
}

// handleGetManifest returns the header and the effective version's content.
// GET /api/manifests/{name}
func (s *Server) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	m, v, err := s.store.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"manifest": m, "current": v})
}

func (s *Server) handleManifestVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.Versions(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, versions)
}

func (s *Server) handleManifestVersion(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || n < 1 {
		http.Error(w, "Invalid version", http.StatusBadRequest)
		return
	}
	v, err := s.store.Version(r.Context(), r.PathValue("name"), n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, v)
}

func (s *Server) handlePublishManifest(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := s.store.Publish(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	v.Content = ""
	writeCreated(w, v)
}

func (s *Server) handleRollbackManifest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version int `json:"version"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := s.store.Rollback(r.Context(), r.PathValue("name"), req.Version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, m)
}

// versionRange reads ?from=&to=; zero means effective and latest.
func versionRange(w http.ResponseWriter, r *http.Request) (from, to int, ok bool) {
	from, okFrom := queryInt(r, "from")
	to, okTo := queryInt(r, "to")
	if !okFrom || !okTo {
		http.Error(w, "Invalid version range", http.StatusBadRequest)
		return 0, 0, false
	}
	return from, to, true
}

// handleManifestDiff returns aligned rows between two versions.
// GET /api/manifests/{name}/diff?from=1&to=3
func (s *Server) handleManifestDiff(w http.ResponseWriter, r *http.Request) {
	from, to, ok := versionRange(w, r)
	if !ok {
		return
	}
	d, err := s.store.Diff(r.Context(), r.PathValue("name"), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, d)
}

func (s *Server) handleManifestPatch(w http.ResponseWriter, r *http.Request) {
	from, to, ok := versionRange(w, r)
	if !ok {
		return
	}
	patch, err := s.store.Patch(r.Context(), r.PathValue("name"), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(patch))
}

// handleDiff diffs two texts posted by the client.
// POST /api/diff {"old": "...", "new": "..."}
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Old string `json:"old"`
		New string `json:"new"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.cache.Diff(req.Old, req.New)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleEnvironments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.console.Environments())
}

func (s *Server) handleGifts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, s.console.ListGifts(GiftFilter{Env: q.Get("env"), Category: q.Get("category"), Query: q.Get("q")}))
}

func (s *Server) handleGameEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, s.console.ListGameEvents(q.Get("env"), q.Get("state")))
}

// handleSync advances the data-sync wizard by one action.
// POST /api/sync {"state": {...}, "action": {...}}
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State  SyncState  `json:"state"`
		Action SyncAction `json:"action"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	next, err := s.console.Advance(req.State, req.Action)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, next)
}
