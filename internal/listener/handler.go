package listener

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/HanTheDev/payload-listener/internal/jsonbig"
	"github.com/HanTheDev/payload-listener/internal/models"
)

const recordTimeout = 5 * time.Second

// Handler routes every method and path to the same observer.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	// Keep paths like /a/../b as sent instead of redirecting.
	router.SkipClean(true)
	router.Use(s.logRequestLine)
	router.MatcherFunc(matchAll).HandlerFunc(s.observe)
	return router
}

func matchAll(*http.Request, *mux.RouteMatch) bool {
	return true
}

func (s *Server) logRequestLine(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Printf("%s %s", r.Method, r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) observe(w http.ResponseWriter, r *http.Request) {
	obs := &models.Observation{
		Method:     r.Method,
		URL:        r.RequestURI,
		RemoteAddr: r.RemoteAddr,
		ReceivedAt: time.Now(),
	}

	body, err := s.readBody(w, r)
	obs.Body = string(body)
	obs.BodySize = int64(len(body))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.logger.Printf("body exceeds %d bytes", tooLarge.Limit)
			obs.StatusCode = http.StatusRequestEntityTooLarge
			obs.ParseError = err.Error()
			s.record(obs)
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Printf("read body: %v", err)
		panic(http.ErrAbortHandler)
	}
	s.logger.Print("end")

	value, err := jsonbig.Parse(body)
	if err != nil {
		s.logger.Printf("parse body: %v", err)
		obs.ParseError = err.Error()
		s.record(obs)
		// No response: the connection is dropped.
		panic(http.ErrAbortHandler)
	}

	obs.Rendered = s.renderer.Render(value)
	s.logger.Print(obs.Rendered)

	w.WriteHeader(http.StatusNoContent)
	obs.StatusCode = http.StatusNoContent
	s.record(obs)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := r.Body
	if s.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, body, s.maxBodyBytes)
	}
	defer body.Close()
	return io.ReadAll(body)
}

// record hands obs to every recorder in the background. obs must not be
// modified afterwards.
func (s *Server) record(obs *models.Observation) {
	for _, rec := range s.recorders {
		rec := rec
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()
			if err := rec.Record(ctx, obs); err != nil {
				s.logger.Printf("record observation: %v", err)
			}
		}()
	}
}
