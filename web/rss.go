package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/domain"
	"github.com/fediglade/fediglade/util"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"
)

const rssLimit = 50

// buildURL builds a fully-qualified URL under the instance's configured
// domain, falling back to the plain host:port form when ActivityPub (and
// therefore TLS termination) is disabled.
func buildURL(conf *util.AppConfig, path string) string {
	if conf.Conf.WithAp && conf.Conf.SslDomain != "" {
		return fmt.Sprintf("https://%s%s", conf.Conf.SslDomain, path)
	}
	return fmt.Sprintf("http://%s:%d%s", conf.Conf.Host, conf.Conf.HttpPort, path)
}

func feedItemFor(conf *util.AppConfig, p domain.Post, author *domain.Actor) *feeds.Item {
	email := fmt.Sprintf("%s@%s", author.Username, conf.Conf.SslDomain)
	return &feeds.Item{
		Id:      p.Id.String(),
		Title:   p.CreatedAt.Format(util.DateTimeFormat()),
		Link:    &feeds.Link{Href: buildURL(conf, fmt.Sprintf("/feed/%s", p.Id))},
		Content: p.Content,
		Author:  &feeds.Author{Name: author.Username, Email: email},
		Created: p.CreatedAt,
	}
}

// GetRSS renders the public RSS feed: every public top-level post instance-
// wide, or (when username is set) one actor's public top-level posts.
// Only Public-visibility posts ever appear, generalizing the teacher's
// unfiltered note feed to this engine's visibility model (spec.md).
func GetRSS(conf *util.AppConfig, username string) (string, error) {
	var posts []domain.Post
	var title, link string

	if username != "" {
		err, actor := db.GetDB().ReadActorByUsername(username)
		if err != nil || actor == nil {
			log.Printf("rss: actor %s not found: %v", username, err)
			return "", errors.New("error retrieving posts by username")
		}
		errP, all := db.GetDB().ReadProfileTimeline(actor.Id, actor.Id, rssLimit)
		if errP != nil {
			log.Printf("rss: could not read timeline for %s: %v", username, errP)
			return "", errors.New("error retrieving posts by username")
		}
		posts = all
		title = fmt.Sprintf("%s's public posts", username)
		link = fmt.Sprintf("%s?username=%s", buildURL(conf, "/feed"), username)
	} else {
		errP, all := db.GetDB().ReadPublicTimeline(rssLimit)
		if errP != nil {
			log.Printf("rss: could not read public timeline: %v", errP)
			return "", errors.New("error retrieving posts")
		}
		posts = all
		title = fmt.Sprintf("%s public timeline", conf.Conf.NodeDescription)
		link = buildURL(conf, "/feed")
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: "public activity on " + conf.Conf.SslDomain,
		Created:     time.Now(),
	}

	var items []*feeds.Item
	for _, p := range posts {
		if p.Visibility != domain.VisibilityPublic || p.IsReply() {
			continue
		}
		errA, author := db.GetDB().ReadActorById(p.AuthorId)
		if errA != nil || author == nil {
			continue
		}
		items = append(items, feedItemFor(conf, p, author))
	}
	feed.Items = items
	return feed.ToRss()
}

// GetRSSItem renders a single post as a one-item RSS feed.
func GetRSSItem(conf *util.AppConfig, id uuid.UUID) (string, error) {
	err, post := db.GetDB().ReadPostById(id)
	if err != nil || post == nil {
		log.Printf("rss: could not get post %s: %v", id, err)
		return "", errors.New("error retrieving post by id")
	}
	if post.Visibility != domain.VisibilityPublic {
		return "", errors.New("post is not public")
	}
	errA, author := db.GetDB().ReadActorById(post.AuthorId)
	if errA != nil || author == nil {
		return "", errors.New("post author not found")
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Post by %s", author.Username),
		Link:        &feeds.Link{Href: buildURL(conf, fmt.Sprintf("/feed/%s", post.Id))},
		Description: "public activity on " + conf.Conf.SslDomain,
		Created:     time.Now(),
	}
	feed.Items = []*feeds.Item{feedItemFor(conf, *post, author)}
	return feed.ToRss()
}
