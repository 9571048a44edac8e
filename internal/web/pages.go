package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/and161185/fashion-nexus/internal/convert"
	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/and161185/fashion-nexus/internal/platform/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) loginPage(c *gin.Context) {
	s.render(c, http.StatusOK, "auth.html", page{Title: "Log in", Tab: "login"})
}

func (s *Server) signupPage(c *gin.Context) {
	s.render(c, http.StatusOK, "auth.html", page{Title: "Sign up", Tab: "signup"})
}

func (s *Server) homePage(c *gin.Context) {
	v := viewerOf(c)
	s.render(c, http.StatusOK, "home.html", page{
		Title:      "Home",
		Collection: convert.ToCollection(v.Images.Snapshot()),
		Featured:   convert.ToFeatured(v.Featured.Snapshot()),
	})
}

func (s *Server) myPicsPage(c *gin.Context) {
	v := viewerOf(c)
	s.render(c, http.StatusOK, "mypics.html", page{
		Title:      "My Pics",
		Collection: convert.ToCollection(v.Images.Snapshot()),
	})
}

func (s *Server) accountPage(c *gin.Context) {
	s.render(c, http.StatusOK, "account.html", page{Title: "Account"})
}

func (s *Server) aboutPage(c *gin.Context) {
	s.render(c, http.StatusOK, "about.html", page{Title: "About"})
}

// awaitSession waits until the stores have seen the viewer's latest auth event,
// so the redirect target renders the new state.
func (s *Server) awaitSession(c *gin.Context) {
	v := viewerOf(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), waitTimeout)
	defer cancel()
	if err := v.Session.Await(ctx, v.Auth.Seq()); err != nil && !isCanceled(err) {
		s.log.Warn("await session", zap.Error(err))
	}
}

func (s *Server) login(c *gin.Context) {
	v := viewerOf(c)
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	if email == "" || password == "" {
		s.render(c, http.StatusUnprocessableEntity, "auth.html", page{
			Title: "Log in", Tab: "login", Email: email,
			Error: "Please enter your email and password.",
		})
		return
	}

	if _, err := v.Auth.SignIn(c.Request.Context(), email, password); err != nil {
		code, msg := http.StatusInternalServerError, "Something went wrong. Please try again."
		switch {
		case errors.Is(err, errs.ErrUnauthorized):
			code, msg = http.StatusUnauthorized, "Invalid login credentials."
		case errors.Is(err, errs.ErrRateLimited):
			code, msg = http.StatusTooManyRequests, "Too many failed attempts. Please try again later."
		default:
			s.log.Error("sign in", zap.Error(err))
		}
		v.Toasts.Notify(notify.Error("Login Failed", msg))
		s.render(c, code, "auth.html", page{Title: "Log in", Tab: "login", Email: email, Error: msg})
		return
	}

	v.Toasts.Notify(notify.Info("Login Successful", "Welcome back!"))
	s.awaitSession(c)
	c.Redirect(http.StatusSeeOther, "/")
}

// signupProblem validates the sign-up form. It returns "" when the form is acceptable.
func signupProblem(email, password, confirm string) string {
	switch {
	case email == "":
		return "Please enter your email address."
	case password != confirm:
		return "Passwords do not match."
	case len(password) < auth.MinPasswordLen:
		return "Password must be at least 6 characters long."
	}
	return ""
}

func (s *Server) signup(c *gin.Context) {
	v := viewerOf(c)
	fullName := strings.TrimSpace(c.PostForm("full_name"))
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	form := page{Title: "Sign up", Tab: "signup", Email: email, FullName: fullName}
	if msg := signupProblem(email, password, c.PostForm("confirm_password")); msg != "" {
		form.Error = msg
		s.render(c, http.StatusUnprocessableEntity, "auth.html", form)
		return
	}

	meta := map[string]any{}
	if fullName != "" {
		meta[model.MetaFullName] = fullName
	}
	if _, err := v.Auth.SignUp(c.Request.Context(), email, password, meta); err != nil {
		code, msg := http.StatusInternalServerError, "Something went wrong. Please try again."
		switch {
		case errors.Is(err, errs.ErrAlreadyExists):
			code, msg = http.StatusConflict, "User already registered."
		case errors.Is(err, errs.ErrValidation):
			code, msg = http.StatusUnprocessableEntity, strings.TrimPrefix(err.Error(), errs.ErrValidation.Error()+": ")
		default:
			s.log.Error("sign up", zap.Error(err))
		}
		v.Toasts.Notify(notify.Error("Signup Failed", msg))
		form.Error = msg
		s.render(c, code, "auth.html", form)
		return
	}

	v.Toasts.Notify(notify.Info("Signup Successful", "Your account has been created. Please log in."))
	c.Redirect(http.StatusSeeOther, "/login")
}

func (s *Server) logout(c *gin.Context) {
	v := viewerOf(c)
	if err := v.Session.SignOut(c.Request.Context()); err != nil {
		s.log.Error("sign out", zap.Error(err))
		v.Toasts.Notify(notify.Error("Logout Error", err.Error()))
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	v.Toasts.Notify(notify.Info("Logged Out", "You have successfully signed out."))
	s.awaitSession(c)
	c.Redirect(http.StatusSeeOther, "/login")
}
