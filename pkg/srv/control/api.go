/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

// go-mxfe API
//
// # RESTful APIs to bring up JESD204 links of MxFE chips
//
// Schemes: http
// Host: localhost:8003
// Version: 1.0.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-openapi/loads"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/device"
	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/control/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/state"
)

// RegHex ...
type RegHex struct {
	Addr  string `json:"addr"`  // hexadecimal
	Value string `json:"value"` // hexadecimal
}

func NewRegHex(addr uint16, value uint8) *RegHex {
	return &RegHex{
		Addr:  fmt.Sprintf("0x%04x", addr),
		Value: fmt.Sprintf("0x%02x", value),
	}
}

// Parse returns the address and the value, both must fit the register map
func (r *RegHex) Parse() (uint16, uint8, error) {
	addr, err := strconv.ParseUint(r.Addr, 0, 16)
	if err != nil {
		return 0, 0, errs.ErrInvalidParameter{What: fmt.Sprintf("register address %q", r.Addr)}
	}
	value, err := strconv.ParseUint(r.Value, 0, 8)
	if err != nil {
		return 0, 0, errs.ErrInvalidParameter{What: fmt.Sprintf("register value %q", r.Value)}
	}
	return uint16(addr), uint8(value), nil
}

type DeviceInfo struct {
	Name        string   `json:"name"`
	Chip        string   `json:"chip"`
	ChainTop    bool     `json:"chainTop"`
	Initialized bool     `json:"initialized"`
	Links       []string `json:"links"`
}

type ApiServer struct {
	context.Context
	*config.Config
	*mux.Router
	sys  ifc.System
	docs *loads.Document
}

var _ ifc.ApiServer = &ApiServer{}

func NewApiServer(ctx context.Context, cfg *config.Config, sys ifc.System) (*ApiServer, error) {
	log.Info("Initializing API server with address: %s port: %d", cfg.IP, cfg.Port)

	docs, err := LoadDocs()
	if err != nil {
		return nil, err
	}
	s := &ApiServer{
		Context: ctx,
		Config:  cfg,
		sys:     sys,
		docs:    docs,
	}
	s.configureRouter()
	return s, nil
}

// Handler is the router wrapped with access logging and panic recovery
func (s *ApiServer) Handler() http.Handler {
	return handlers.LoggingHandler(log.Writer(),
		handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(s.Router))
}

// Run serves until the context is done
func (s *ApiServer) Run() error {
	log.Info("Starting API server: address: %s port: %d", s.Config.IP, s.Config.Port)
	httpServer := &http.Server{
		Handler: s.Handler(),
		Addr:    fmt.Sprintf("%s:%d", s.Config.IP, s.Config.Port),
	}
	go func() {
		<-s.Context.Done()
		httpServer.Shutdown(context.Background())
	}()
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return s.Context.Err()
	}
	return err
}

func (s *ApiServer) configureRouter() {
	s.Router = mux.NewRouter()
	subRouter := s.Router.PathPrefix(apiBasePath).Subrouter()
	subRouter.HandleFunc("/device", s.handleDeviceList()).Methods("GET")
	subRouter.HandleFunc("/device/{device}", s.handleDeviceStatus()).Methods("GET")
	subRouter.HandleFunc("/device/{device}/bringup", s.handleDeviceBringUp()).Methods("POST")
	subRouter.HandleFunc("/device/{device}/teardown", s.handleDeviceTeardown()).Methods("POST")
	subRouter.HandleFunc("/device/{device}/record", s.handleDeviceRecord()).Methods("GET")
	subRouter.HandleFunc("/bringup", s.handleBringUp()).Methods("POST")
	subRouter.HandleFunc("/link/{device}/{link}", s.handleLinkStatus()).Methods("GET")
	subRouter.HandleFunc("/reg/r/{device}/{addr:0x[0-9a-fA-F]{4}}", s.handleRegRead()).Methods("GET")
	subRouter.HandleFunc("/reg/r/{device}", s.handleRegReadAll()).Methods("GET")
	subRouter.HandleFunc("/reg/w/{device}", s.handleRegWrite()).Methods("POST")

	docs := docsHandler(s.docs)
	subRouter.Handle("/swagger.json", docs).Methods("GET")
	subRouter.Handle("/"+docsPath, docs).Methods("GET")
}

// httpStatus maps typed errors to response codes
func httpStatus(err error) int {
	var notFound ErrDeviceNotFound
	var linkNotFound device.ErrLinkNotFound
	var invalid errs.ErrInvalidParameter
	var noState ErrNoState
	switch {
	case errors.As(err, &notFound), errors.As(err, &linkNotFound), errors.Is(err, state.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &noState):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Error while encoding response: %s", err)
	}
}

func (s *ApiServer) handleDeviceList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos := []DeviceInfo{}
		for _, d := range s.sys.Devices() {
			infos = append(infos, DeviceInfo{
				Name:        d.Name(),
				Chip:        d.Chip().String(),
				ChainTop:    d.ChainTop(),
				Initialized: d.Initialized(),
				Links:       d.LinkNames(),
			})
		}
		writeJSON(w, http.StatusOK, infos)
	}
}

func (s *ApiServer) handleDeviceStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling status request: device: %s", vars["device"])

		st, err := s.sys.Status(vars["device"])
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// writeReport answers with the report also when bring-up failed, the
// devices part tells which links did not come up
func writeReport(w http.ResponseWriter, report *ifc.Report, err error) {
	if report == nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	code := http.StatusOK
	if err != nil {
		code = httpStatus(err)
	}
	writeJSON(w, code, report)
}

func (s *ApiServer) handleDeviceBringUp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Info("Handling bring-up request: device: %s", vars["device"])

		report, err := s.sys.BringUpDevice(r.Context(), vars["device"])
		writeReport(w, report, err)
	}
}

func (s *ApiServer) handleBringUp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Info("Handling bring-up request for the whole chain")

		report, err := s.sys.BringUp(r.Context())
		writeReport(w, report, err)
	}
}

func (s *ApiServer) handleDeviceTeardown() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Info("Handling teardown request: device: %s", vars["device"])

		if err := s.sys.TeardownDevice(r.Context(), vars["device"]); err != nil {
			http.Error(w, err.Error(), httpStatus(err))
		}
	}
}

func (s *ApiServer) handleDeviceRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		rec, err := s.sys.Record(vars["device"])
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *ApiServer) handleLinkStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling link status request: device: %s link: %s", vars["device"], vars["link"])

		ls, err := s.sys.LinkStatus(vars["device"], vars["link"])
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, ls)
	}
}

func (s *ApiServer) handleRegRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling reg read request: device: %s, addr: %s", vars["device"], vars["addr"])

		addr, err := strconv.ParseUint(vars["addr"], 0, 16)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		value, err := s.sys.RegRead(vars["device"], uint16(addr))
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, NewRegHex(uint16(addr), value))
	}
}

func (s *ApiServer) handleRegReadAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling reg read all request: device: %s", vars["device"])

		regs, err := s.sys.Shadow(vars["device"])
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		regsHex := []*RegHex{}
		for _, reg := range regs {
			regsHex = append(regsHex, NewRegHex(reg.Addr, reg.Value))
		}
		writeJSON(w, http.StatusOK, regsHex)
	}
}

func (s *ApiServer) handleRegWrite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		regHex := &RegHex{}
		if err := json.NewDecoder(r.Body).Decode(regHex); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Debug("Handling reg write request: device: %s addr: %s value: %s",
			vars["device"], regHex.Addr, regHex.Value)

		addr, value, err := regHex.Parse()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.sys.RegWrite(vars["device"], addr, value); err != nil {
			http.Error(w, err.Error(), httpStatus(err))
		}
	}
}
