package handlers

import (
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"crowpro-api/helper"
	"crowpro-api/services"
)

// pageOf and limitOf mirror the paging defaults the services apply, so the
// pagination block describes the page actually returned.
func pageOf(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func limitOf(limit int) int {
	switch {
	case limit < 1:
		return 10
	case limit > 100:
		return 100
	}
	return limit
}

func paramID(c *gin.Context, h *helper.HTTPHelper, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		h.SendBadRequest(c, "Invalid "+name, h.EmptyJsonMap())
		return 0, false
	}
	return uint(id), true
}

// formImage opens the named multipart file. The caller closes the returned closer.
func formImage(c *gin.Context, h *helper.HTTPHelper, field string) (services.ImageUpload, io.Closer, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		h.SendBadRequest(c, field+" file is required", h.EmptyJsonMap())
		return services.ImageUpload{}, nil, false
	}

	file, err := header.Open()
	if err != nil {
		h.SendBadRequest(c, "unreadable "+field+" file", h.EmptyJsonMap())
		return services.ImageUpload{}, nil, false
	}

	return services.ImageUpload{Filename: header.Filename, Size: header.Size, Reader: file}, file, true
}
