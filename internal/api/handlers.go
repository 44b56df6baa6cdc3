package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/gwasmissing"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/sumstats"
	"github.com/gorilla/mux"
)

// writeFacadeError maps an apperr.Kind to the status/body pair described by
// the error handling design: NotFound is a normal empty-collection
// response, BadRequest echoes the caller's mistake, everything else is an
// opaque 500 with the real cause only in the server log.
func writeFacadeError(w http.ResponseWriter, op string, err error) {
	kind := apperr.GetKind(err)
	switch kind {
	case apperr.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error(), []interface{}{})
	case apperr.KindBadRequest:
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		log.Printf("error [%s]: %v", op, err)
		writeError(w, http.StatusInternalServerError, "Internal server error.", nil)
	}
}

func (s *Server) handleListPhenotypes(w http.ResponseWriter, r *http.Request) {
	phenocode := mux.Vars(r)["phenocode"]
	writeJSON(w, http.StatusOK, s.facade.ListPhenotypes(phenocode))
}

func (s *Server) handleTopHits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.facade.TopHits())
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	phenocode := mux.Vars(r)["phenocode"]
	writeJSON(w, http.StatusOK, s.facade.InteractionList(phenocode))
}

func (s *Server) handleManhattan(w http.ResponseWriter, r *http.Request) {
	phenocode := mux.Vars(r)["phenocode"]
	strat := r.URL.Query().Get("strat")
	payload, err := s.facade.GetPhenoManhattan(phenocode, strat)
	if err != nil {
		writeFacadeError(w, "GetPhenoManhattan", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func (s *Server) handleQQ(w http.ResponseWriter, r *http.Request) {
	phenocode := mux.Vars(r)["phenocode"]
	strat := r.URL.Query().Get("strat")
	payload, err := s.facade.GetQQ(phenocode, strat)
	if err != nil {
		writeFacadeError(w, "GetQQ", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	strat := r.URL.Query().Get("strat")
	result, err := s.facade.GetRegion(vars["phenocode"], strat, vars["region"])
	if err != nil {
		writeFacadeError(w, "GetRegion", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseFilterOptions reads the shared "indel"/"maf" query parameters used
// by both the download and filter endpoints, defaulting to the
// no-op filter on any missing or unparsable value.
func parseFilterOptions(q interface{ Get(string) string }) sumstats.FilterOptions {
	opts := sumstats.DefaultFilterOptions()
	if v := q.Get("indel"); v == "true" || v == "false" || v == "both" {
		opts.Indel = v
	}
	if v := q.Get("min_maf"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.MinMAF = f
		}
	}
	if v := q.Get("max_maf"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.MaxMAF = f
		}
	}
	return opts
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	phenocode := mux.Vars(r)["phenocode"]
	strat := r.URL.Query().Get("strat")
	opts := parseFilterOptions(r.URL.Query())

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.facade.SumstatsFilename(phenocode, opts)))
	w.Header().Set("Transfer-Encoding", "chunked")

	var flush func()
	if canFlush {
		flush = flusher.Flush
	}
	if err := s.facade.GetSumstats(w, phenocode, strat, opts, flush); err != nil {
		writeFacadeError(w, "GetSumstats", err)
		return
	}
}

func (s *Server) handleFilterVariants(w http.ResponseWriter, r *http.Request) {
	phenocode := mux.Vars(r)["phenocode"]
	strat := r.URL.Query().Get("strat")
	opts := parseFilterOptions(r.URL.Query())
	result, err := s.facade.FilterVariants(phenocode, strat, opts)
	if err != nil {
		writeFacadeError(w, "FilterVariants", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVariantPhewas(w http.ResponseWriter, r *http.Request) {
	variant := mux.Vars(r)["variant"]
	strat := r.URL.Query().Get("strat")
	result, err := s.facade.GetVariantPhewas(variant, strat)
	if err != nil {
		writeFacadeError(w, "GetVariantPhewas", err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "variant not found: "+variant, []interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVariantRsid(w http.ResponseWriter, r *http.Request) {
	variant := mux.Vars(r)["variant"]
	rsid, ok, err := s.facade.GetVariantRsid(variant)
	if err != nil {
		writeFacadeError(w, "GetVariantRsid", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no rsid for "+variant, []interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rsid": rsid})
}

func (s *Server) handleVariantNearestGenes(w http.ResponseWriter, r *http.Request) {
	variant := mux.Vars(r)["variant"]
	genes, err := s.facade.GetVariantNearestGenes(variant)
	if err != nil {
		writeFacadeError(w, "GetVariantNearestGenes", err)
		return
	}
	if genes == nil {
		writeError(w, http.StatusNotFound, "no nearest genes for "+variant, []interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, genes)
}

func (s *Server) handleGeneAssociations(w http.ResponseWriter, r *http.Request) {
	gene := mux.Vars(r)["gene"]
	assoc, err := s.facade.GetGeneAssociations(gene)
	if err != nil {
		writeFacadeError(w, "GetGeneAssociations", err)
		return
	}
	if assoc == nil {
		writeError(w, http.StatusNotFound, "no associations for "+gene, []interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, assoc)
}

func (s *Server) handleGenePosition(w http.ResponseWriter, r *http.Request) {
	gene := mux.Vars(r)["gene"]
	pos, ok := s.facade.GetGenePosition(gene)
	if !ok {
		writeError(w, http.StatusNotFound, "no position for "+gene, []interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	if q == "" {
		q = r.URL.Query().Get("q")
	}
	result, err := s.facade.Autocomplete(q)
	if err != nil {
		writeFacadeError(w, "Autocomplete", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGwasMissing(w http.ResponseWriter, r *http.Request) {
	var req map[string][]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	results := s.facade.GwasMissing(req)
	data := make(map[string][]gwasmissing.Record, len(results))
	for key, res := range results {
		if res.Err != nil {
			log.Printf("error [GwasMissing] stratification %s: %v", key, res.Err)
			continue
		}
		data[key] = res.Records
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "ok",
		"data":    data,
	})
}
