package handlers

import (
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/directory"
)

func (h *Handler) Me(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	u, err := h.Users.Get(c.Request.Context(), uid)
	if err != nil {
		h.failErr(c, "get me", err)
		return
	}
	common.OK(c, u)
}

// ListUsers returns the staff directory, or department buckets with
// ?group=department.
func (h *Handler) ListUsers(c *gin.Context) {
	if c.Query("group") == "department" {
		groups, err := h.Users.GroupByDepartment(c.Request.Context())
		if err != nil {
			h.failErr(c, "group users", err)
			return
		}
		common.OK(c, gin.H{"departments": groups})
		return
	}

	users, err := h.Users.List(c.Request.Context())
	if err != nil {
		h.failErr(c, "list users", err)
		return
	}
	common.OK(c, gin.H{"users": users})
}

// LookupUsers resolves ?ids=a,b,c. Ids without a profile come back in
// notFound rather than failing the request.
func (h *Handler) LookupUsers(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	found, missing, err := h.Users.GetMany(c.Request.Context(), ids)
	if err != nil {
		h.failErr(c, "lookup users", err)
		return
	}

	users := make([]*directory.User, 0, len(found))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if u, ok := found[id]; ok && !seen[id] {
			seen[id] = true
			users = append(users, u)
		}
	}
	notFound := make([]string, 0, len(missing))
	for id := range missing {
		notFound = append(notFound, id)
	}
	sort.Strings(notFound)

	common.OK(c, gin.H{"users": users, "notFound": notFound})
}
