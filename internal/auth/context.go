package auth

import "github.com/gin-gonic/gin"

const ginKey = "auth"

func SetContext(c *gin.Context, ac *Context) { c.Set(ginKey, ac) }

// FromContext returns the caller's identity, or nil when auth is off.
func FromContext(c *gin.Context) *Context {
	v, ok := c.Get(ginKey)
	if !ok {
		return nil
	}
	ac, _ := v.(*Context)
	return ac
}
