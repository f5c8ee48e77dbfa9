package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/IliaW/url-scrape-archiver/internal/auth"
	"github.com/IliaW/url-scrape-archiver/internal/model"
	"github.com/IliaW/url-scrape-archiver/internal/storage"
	"github.com/IliaW/url-scrape-archiver/internal/validator"
	"github.com/IliaW/url-scrape-archiver/internal/worker"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

type Runner interface {
	Run(context.Context, *model.ScrapeRequest) (*model.ArchiveArtifact, error)
}

type IdentityVerifier interface {
	Verify(token string) (model.Identity, error)
}

type Handler struct {
	runner     Runner
	store      storage.ArtifactStore
	verifier   IdentityVerifier
	cookieName string
	log        *slog.Logger
}

func NewHandler(runner Runner, store storage.ArtifactStore, verifier IdentityVerifier, cookieName string,
	log *slog.Logger) *Handler {
	return &Handler{
		runner:     runner,
		store:      store,
		verifier:   verifier,
		cookieName: cookieName,
		log:        log,
	}
}

type scrapeBody struct {
	URL string `json:"url"`
}

type fieldError struct {
	Msg   string `json:"msg"`
	Param string `json:"param"`
}

// Scrape runs the pipeline for the posted url and returns the artifact name and its passphrase.
func (h *Handler) Scrape(c *gin.Context) {
	var body scrapeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		invalid(c, validator.MsgInvalidFormat)
		return
	}
	identity, _ := c.Get(identityKey)
	id, _ := identity.(model.Identity)

	// the request context is cancelled when the client disconnects, which aborts the fetch
	artifact, err := h.runner.Run(c.Request.Context(), &model.ScrapeRequest{
		RawURL:   strings.TrimSpace(body.URL),
		Identity: id,
	})
	if err != nil {
		var pe *worker.PipelineError
		if !errors.As(err, &pe) {
			pe = &worker.PipelineError{Kind: worker.Internal, Msg: worker.Internal.Message(), Err: err}
		}
		if pe.Kind == worker.InvalidURL {
			invalid(c, pe.Msg)
			return
		}
		c.JSON(pe.Kind.Status(), gin.H{"msg": pe.Msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"msg":      "Scraping complete",
		"file":     artifact.Filename,
		"password": artifact.Passphrase,
	})
}

// Download streams a stored artifact. Unknown and malformed names are both 404.
func (h *Handler) Download(c *gin.Context) {
	name := c.Param("name")
	rc, size, err := h.store.Open(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"msg": "File not found"})
			return
		}
		h.log.Error("failed to open artifact.", slog.String("name", name), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": worker.Internal.Message()})
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, size, storage.ContentType(name), rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, name),
	})
}

// authMiddleware accepts the credential from the configured cookie or a Bearer header.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(h.cookieName)
		if token == "" {
			if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Unauthorized: No token"})
			return
		}

		identity, err := h.verifier.Verify(token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				h.log.Warn("token verification failed.", slog.String("err", err.Error()))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Invalid or expired token"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func invalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"msg":    msg,
		"errors": []fieldError{{Msg: msg, Param: "url"}},
	})
}
