package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

const (
	photoFeedLimit   = 20
	recentItemsLimit = 5
)

type messagingApi struct {
	svc     *messaging.Service
	schSvc  *school.Service
	usrSvc  *user.Service
	storage core.FileStorage
}

func registerMessagingAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *messaging.Service,
	schSvc *school.Service,
	usrSvc *user.Service,
	storage core.FileStorage,
) {
	api := messagingApi{svc: svc, schSvc: schSvc, usrSvc: usrSvc, storage: storage}

	g.GET("/home", api.home, jwt)
	g.GET("/levels/:slug/messenger", api.messenger, jwt)
	g.POST("/levels/:slug/conversations", api.createConversation, jwt, staffMiddleware())

	cg := g.Group("/conversations", jwt)
	cg.POST("/:id/participants", api.addParticipants)
	cg.POST("/:id/posts", api.createPost)
	cg.GET("/:id/posts", api.queryPosts)

	mg := g.Group("/messages", jwt)
	mg.POST("", api.sendMessage)
	mg.GET("", api.inbox)
	mg.GET("/sent", api.outbox)
	mg.GET("/unread-count", api.unreadCount)
	mg.PUT("/:id/read", api.markRead)
}

// Handlers

// home returns the landing page data: the latest picture posts from the
// caller's conversations, the conversations themselves and, for parents,
// their children.
func (api *messagingApi) home(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	resp := HomeResponse{
		Feed:          []messaging.Post{},
		Conversations: []messaging.Conversation{},
		Children:      []school.Student{},
	}
	feed, err := api.svc.PhotoFeed(reqCtx, ctxUsr, photoFeedLimit)
	if err != nil {
		return errors.Wrap(err, "querying photo feed")
	}
	if feed != nil {
		resp.Feed = feed
	}

	access := api.svc.Access()
	lvls, err := access.VisibleLevels(reqCtx, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "querying visible levels")
	}
	seen := make(map[string]bool)
	for _, lvl := range lvls {
		convs, err := access.VisibleConversations(reqCtx, ctxUsr, lvl)
		if err != nil {
			return errors.Wrap(err, "querying visible conversations")
		}
		for _, conv := range convs {
			if !seen[conv.ID] {
				seen[conv.ID] = true
				resp.Conversations = append(resp.Conversations, conv)
			}
		}
	}

	if ctxUsr.IsParent() {
		children, err := api.schSvc.QueryStudents(reqCtx, school.StudentFilter{ParentID: ctxUsr.ID})
		if err != nil {
			return errors.Wrap(err, "querying children")
		}
		if children != nil {
			resp.Children = children
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

// messenger renders a level's messenger pane: the conversations the caller
// can see there, the selected one, and its wall of posts.
func (api *messagingApi) messenger(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	lvl, err := api.schSvc.GetLevelBySlug(reqCtx, ctx.Param("slug"))
	if err != nil {
		return err
	}

	access := api.svc.Access()
	convs, err := access.VisibleConversations(reqCtx, ctxUsr, lvl)
	if err != nil {
		return errors.Wrap(err, "querying visible conversations")
	}
	if convs == nil {
		convs = []messaging.Conversation{}
	}

	resp := MessengerResponse{Level: lvl, Conversations: convs, Posts: []messaging.Post{}}
	selected, err := access.SelectedConversation(reqCtx, ctxUsr, lvl, ctx.QueryParam("conversation"))
	switch errors.Cause(err) {
	case nil:
	case messaging.ErrNotFound: // nothing to select; empty pane
		return ctx.JSON(http.StatusOK, resp)
	default:
		return err
	}

	resp.Selected = &selected
	posts, err := api.svc.QueryPosts(reqCtx, ctxUsr, selected.ID)
	if err != nil {
		return err
	}
	if posts != nil {
		resp.Posts = posts
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *messagingApi) createConversation(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	lvl, err := api.schSvc.GetLevelBySlug(reqCtx, ctx.Param("slug"))
	if err != nil {
		return err
	}

	var data messaging.NewConversation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConversation")
	}
	conv, err := api.svc.CreateConversation(reqCtx, ctxUsr, lvl, data)
	if err != nil {
		if errors.Cause(err) == messaging.ErrPermissionDenied {
			return errHttpForbidden
		}
		return err
	}
	return ctx.JSON(http.StatusCreated, conv)
}

func (api *messagingApi) addParticipants(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data AddParticipantsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddParticipantsRequest")
	}
	res, err := api.svc.AddParticipants(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data.StudentIDs...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

// createPost accepts multipart form data: "title" and "body" fields and an
// optional "image" file. A post with neither body nor image is silently
// dropped.
func (api *messagingApi) createPost(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	np := messaging.NewPost{Title: ctx.FormValue("title"), Body: ctx.FormValue("body")}
	if fh, err := ctx.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening upload")
		}
		defer func() { _ = f.Close() }()

		np.ImageURL, err = api.storage.Save(f, "posts/"+time.Now().Format("2006/01"), fh.Filename)
		if err != nil {
			return errors.Wrap(err, "saving image")
		}
	}

	post, err := api.svc.CreatePost(ctx.Request().Context(), ctxUsr, ctx.Param("id"), np)
	switch errors.Cause(err) {
	case nil:
		return ctx.JSON(http.StatusCreated, post)
	case messaging.ErrEmptyPost: // nothing to publish
		return ctx.NoContent(http.StatusNoContent)
	default:
		return err
	}
}

func (api *messagingApi) queryPosts(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	posts, err := api.svc.QueryPosts(ctx.Request().Context(), ctxUsr, ctx.Param("id"))
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []messaging.Post{}
	}
	return ctx.JSON(http.StatusOK, posts)
}

func (api *messagingApi) sendMessage(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data messaging.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	msg, err := api.svc.SendMessage(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *messagingApi) inbox(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	msgs, err := api.svc.Inbox(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "querying inbox")
	}
	if msgs == nil {
		msgs = []messaging.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messagingApi) outbox(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	msgs, err := api.svc.Outbox(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "querying outbox")
	}
	if msgs == nil {
		msgs = []messaging.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messagingApi) unreadCount(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	n, err := api.svc.UnreadCount(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "counting unread messages")
	}
	return ctx.JSON(http.StatusOK, UnreadCountResponse{Unread: n})
}

func (api *messagingApi) markRead(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.MarkRead(ctx.Request().Context(), ctxUsr, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "message marked as read"})
}

type (
	HomeResponse struct {
		Feed          []messaging.Post         `json:"feed"`
		Conversations []messaging.Conversation `json:"conversations"`
		Children      []school.Student         `json:"children"`
	}

	MessengerResponse struct {
		Level         school.Level             `json:"level"`
		Conversations []messaging.Conversation `json:"conversations"`
		Selected      *messaging.Conversation  `json:"selected"`
		Posts         []messaging.Post         `json:"posts"`
	}

	AddParticipantsRequest struct {
		StudentIDs []string `json:"student_ids"`
	}

	UnreadCountResponse struct {
		Unread int `json:"unread"`
	}
)
