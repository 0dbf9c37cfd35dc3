package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK 返回 200 {success:true, data}
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// Created 返回 201 {success:true, data}
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

// OKWithWarnings 列表回應；讀取補充失敗時附帶 warnings
func OKWithWarnings(c *gin.Context, data interface{}, pagination interface{}, warnings []string) {
	body := gin.H{"success": true, "data": data}
	if pagination != nil {
		body["pagination"] = pagination
	}
	if len(warnings) > 0 {
		body["warnings"] = warnings
	}
	c.JSON(http.StatusOK, body)
}
