package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"qalink/internal/middleware"
)

const (
	oauthStateKey      = "oauth_state"
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleCallbackPath = "/session/google/callback"
)

// NewGoogleOAuthConfig 站点地址用于拼回调地址
func NewGoogleOAuthConfig(clientID, clientSecret, siteURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  siteURL + googleCallbackPath,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// GoogleUserInfo Google 用户信息结构
type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// GoogleAuthHandler signs existing users in through Google. Accounts are matched by verified email;
// nobody is registered here.
type GoogleAuthHandler struct {
	oauth       *oauth2.Config
	users       UserFinder
	userInfoURL string
	log         *logrus.Entry
}

func NewGoogleAuthHandler(oauth *oauth2.Config, users UserFinder, log *logrus.Entry) *GoogleAuthHandler {
	return &GoogleAuthHandler{oauth: oauth, users: users, userInfoURL: googleUserInfoURL, log: log}
}

// WithUserInfoURL overrides the userinfo endpoint.
func (h *GoogleAuthHandler) WithUserInfoURL(url string) *GoogleAuthHandler {
	h.userInfoURL = url
	return h
}

// generateStateToken 生成随机 state token
func generateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Login 发起 Google OAuth 登录
func (h *GoogleAuthHandler) Login(c *gin.Context) {
	state, err := generateStateToken()
	if err != nil {
		RenderError(c, h.log, err)
		return
	}

	// 将 state 存储到 session 中,用于验证回调
	session := sessions.Default(c)
	session.Set(oauthStateKey, state)
	if err := session.Save(); err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, h.oauth.AuthCodeURL(state))
}

// Callback 处理 Google OAuth 回调
func (h *GoogleAuthHandler) Callback(c *gin.Context) {
	session := sessions.Default(c)
	saved, _ := session.Get(oauthStateKey).(string)
	if saved == "" || c.Query("state") != saved {
		h.reject(c, http.StatusBadRequest, "invalid_state", "Invalid OAuth state.")
		return
	}
	session.Delete(oauthStateKey)

	code := c.Query("code")
	if code == "" {
		h.reject(c, http.StatusBadRequest, "invalid_parameters", "Missing authorization code.")
		return
	}

	ctx := c.Request.Context()
	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.log.WithError(err).Warn("google token exchange failed")
		h.reject(c, http.StatusUnauthorized, "invalid_login", "Google sign-in failed.")
		return
	}

	info, err := h.userInfo(c, token)
	if err != nil {
		h.log.WithError(err).Warn("fetch google user info failed")
		h.reject(c, http.StatusUnauthorized, "invalid_login", "Google sign-in failed.")
		return
	}
	// 检查邮箱是否已验证
	if !info.VerifiedEmail {
		h.reject(c, http.StatusForbidden, "invalid_login", "Your Google email is not verified.")
		return
	}

	user, err := h.users.FindUserByLogin(ctx, info.Email)
	if err != nil {
		h.reject(c, http.StatusForbidden, "invalid_login", "No account uses this Google email.")
		return
	}

	session.Set(middleware.SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		RenderError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username, "trust_level": user.TrustLevel})
}

func (h *GoogleAuthHandler) userInfo(c *gin.Context, token *oauth2.Token) (*GoogleUserInfo, error) {
	client := h.oauth.Client(c.Request.Context(), token)
	resp, err := client.Get(h.userInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var info GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (h *GoogleAuthHandler) reject(c *gin.Context, status int, code, msg string) {
	_ = sessions.Default(c).Save()
	c.JSON(status, gin.H{"errors": []string{msg}, "error_type": code})
}
