package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ppob-wallet-ledger/internal/api_gateway/middleware"
	"github.com/ppob-wallet-ledger/internal/auth"
)

// identity returns the caller, answering 401 when the route forgot to authenticate.
func identity(c *gin.Context) (auth.Identity, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
	}
	return id, ok
}

// owner scopes lookups to the caller unless they are an admin.
func owner(id auth.Identity) *uuid.UUID {
	if id.IsAdmin() {
		return nil
	}
	return &id.UserID
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondBadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
