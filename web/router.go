package web

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/inbox"
	"github.com/fediglade/fediglade/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// NewRouter builds the HTTP surface (spec.md 6): webfinger, nodeinfo,
// actor/collection JSON, and (when ActivityPub is enabled) the inbox/
// outbox routes wired to rcv, the Inbox Receiver built by app/.
func NewRouter(conf *util.AppConfig, rcv *inbox.Receiver) (*gin.Engine, error) {
	gin.DefaultWriter = util.GetLogWriter()
	gin.DefaultErrorWriter = util.GetLogWriter()

	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20.
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// RSS feed, always available regardless of WithAp (spec.md AMBIENT).
	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := GetRSS(conf, c.Query("username"))
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}
		c.Render(200, render.String{Format: rss})
	})

	g.GET("/feed/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}
		rssItem, err := GetRSSItem(conf, id)
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}
		c.Render(200, render.String{Format: rssItem})
	})

	if conf.Conf.WithAp {
		registerActivityPubRoutes(g, conf, rcv)
	}

	return g, nil
}

func registerActivityPubRoutes(g *gin.Engine, conf *util.AppConfig, rcv *inbox.Receiver) {
	const apContentType = "application/activity+json; charset=utf-8"
	apLimiter := NewRateLimiter(rate.Limit(5), 10)
	maxBody := MaxBytesMiddleware(1 << 20) // 1MiB

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")
		resource := c.Query("resource")
		if resource == "" || !strings.HasPrefix(resource, "acct:") {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
			return
		}
		resource = strings.TrimPrefix(resource, "acct:")
		resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", conf.Conf.SslDomain))
		err, resp := GetWebfinger(resource, conf)
		if err != nil {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
			return
		}
		c.Render(200, render.String{Format: resp})
	})

	g.GET("/.well-known/nodeinfo", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Render(200, render.String{Format: GetWellKnownNodeInfo(conf)})
	})
	g.GET("/nodeinfo/2.0", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Render(200, render.String{Format: GetNodeInfo20(conf)})
	})

	g.GET("/actor", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		err, body := GetInstanceActor(conf)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: body})
	})
	g.POST("/actor/inbox", RateLimitMiddleware(apLimiter), maxBody, handlePersonalInbox(rcv))

	g.GET("/users/:actor", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		err, body := GetActor(c.Param("actor"), conf)
		if err != nil {
			c.Render(404, render.String{Format: body})
			return
		}
		c.Render(200, render.String{Format: body})
	})

	g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBody, handleSharedInbox(rcv, conf))
	g.POST("/users/:actor/inbox", RateLimitMiddleware(apLimiter), maxBody, handlePersonalInbox(rcv))

	g.GET("/users/:actor/outbox", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		page := ParsePageParam(c.Query("page"))
		pageParam := 0
		if c.Query("page") != "" {
			pageParam = page
		}
		err, body := GetOutbox(c.Param("actor"), conf, pageParam)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: body})
	})

	g.GET("/users/:actor/followers", collectionHandler(func(actor string, page int) (error, string) {
		return GetFollowersCollection(actor, conf, page)
	}))
	g.GET("/users/:actor/following", collectionHandler(func(actor string, page int) (error, string) {
		return GetFollowingCollection(actor, conf, page)
	}))
	g.GET("/users/:actor/collections/featured", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		err, body := GetFeaturedCollection(c.Param("actor"), conf)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: body})
	})

	g.GET("/objects/:id", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		err, body := GetObject(id, conf)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: body})
	})
	g.GET("/objects/emojis/:name", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		err, body := GetEmojiObject(c.Param("name"), conf)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: body})
	})
	g.GET("/objects/:id/replies", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		err, body := GetRepliesCollection(id, conf)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: body})
	})

	g.GET("/collections/conversations/:id", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		err, body := GetConversationCollection(id, conf)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: body})
	})

	// FEP-ef61 portable-actor gateway: resolves a did:key identity hosted
	// by this instance to its signed actor document.
	g.GET("/.well-known/apgateway/:did/actor", func(c *gin.Context) {
		c.Header("Content-Type", apContentType)
		err, body := GetPortableActor(c.Param("did"), conf)
		if err != nil {
			log.Printf("apgateway: %v", err)
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: body})
	})

	// FEP-ef61 portable-actor registration (spec.md S6): a client submits
	// its own signed actor document, invite-code gated.
	g.POST("/.well-known/apgateway", RateLimitMiddleware(apLimiter), maxBody, func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(400)
			return
		}
		inviteCode := c.GetHeader("X-Invite-Code")
		if inviteCode == "" {
			inviteCode = c.Query("inviteCode")
		}
		if err := RegisterPortableActor(body, inviteCode, conf); err != nil {
			switch {
			case apperr.Is(err, apperr.KindAuthentication):
				c.Status(403)
			case apperr.Is(err, apperr.KindValidation):
				c.Status(400)
			case apperr.Is(err, apperr.KindConflict):
				c.Status(409)
			default:
				log.Printf("apgateway: registering portable actor: %v", err)
				c.Status(500)
			}
			return
		}
		c.Status(201)
	})
}

func collectionHandler(fn func(actor string, page int) (error, string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		page := 0
		if c.Query("page") != "" {
			page = ParsePageParam(c.Query("page"))
		}
		err, body := fn(c.Param("actor"), page)
		if err != nil {
			c.Render(404, render.String{Format: "{}"})
			return
		}
		c.Render(200, render.String{Format: body})
	}
}
