package pubfront

import (
	"github.com/a-h/templ"

	"github.com/eringen/pubfront/content"
	"github.com/eringen/pubfront/views"
)

// ViewFuncs holds the components the handlers render. DefaultViews wires
// the embedded templates; callers may swap any of them.
type ViewFuncs struct {
	Home            func(views.HomePage) templ.Component
	PostItems       func(views.PostItems) templ.Component
	Post            func(views.PostPage) templ.Component
	PostPartial     func(views.PostPage) templ.Component
	PostLoading     func(views.PostLoading) templ.Component
	NotFound        func(views.ErrorPage) templ.Component
	NotFoundPartial func(views.ErrorPage) templ.Component
	ServerError     func(views.ErrorPage) templ.Component
}

// DefaultViews returns ViewFuncs backed by v.
func DefaultViews(v *views.Views) ViewFuncs {
	return ViewFuncs{
		Home:            v.Home,
		PostItems:       v.PostItems,
		Post:            v.Post,
		PostPartial:     v.PostPartial,
		PostLoading:     v.PostLoading,
		NotFound:        v.NotFound,
		NotFoundPartial: v.NotFoundPartial,
		ServerError:     v.ServerError,
	}
}

// postProps is the snapshot of a post page.
type postProps struct {
	Post      content.Post      `json:"post"`
	Neighbors content.Neighbors `json:"neighbors"`
}
