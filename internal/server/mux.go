package server

import (
	"net/http"
)

// VersionInfo 构建信息
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Routes 运维端点的组成部分，为空的部分不注册
type Routes struct {
	Health   *Health
	Metrics  http.Handler
	Version  VersionInfo
	Sessions func() any
}

// NewMux 注册 /healthz、/readyz、/version、/metrics 与 /sessions
func NewMux(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()
	if rt.Health != nil {
		mux.HandleFunc("GET /health", rt.Health.HandleLive)
		mux.HandleFunc("GET /healthz", rt.Health.HandleLive)
		mux.HandleFunc("GET /readyz", rt.Health.HandleReady)
	}
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.Version)
	})
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}
	if rt.Sessions != nil {
		mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, rt.Sessions())
		})
	}
	return mux
}
