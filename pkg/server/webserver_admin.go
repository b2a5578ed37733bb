package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/matst80/slask-grid/pkg/common"
	"github.com/matst80/slask-grid/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/oauth2"
)

var (
	totalRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slaskgrid_records_total",
		Help: "The total number of records in the canonical grid",
	})
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slaskgrid_sessions_active",
		Help: "The number of live edit sessions",
	})
)

func generateStateOauthCookie() string {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		return ""
	}
	state := base64.URLEncoding.EncodeToString(b)

	return state
}

var secretKey = []byte("slask-88121337!-gridplankan")

func createToken(username string, name string, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{
			"username": username,
			"name":     name,
			"role":     role,
			"exp":      time.Now().Add(time.Hour * 24).Unix(),
		})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (ws *WebServer) Login(w http.ResponseWriter, r *http.Request) {
	oauthState := generateStateOauthCookie()
	url := ws.OAuthConfig.AuthCodeURL(oauthState, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

type UserData struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Id            string `json:"id"`
	Picture       string `json:"picture"`
}

const tokenCookieName = "sg-admin"
const apiKey = "Basic Z3JpZGFwaTptYXN0ZXJncmlkZGVyMjAwMA=="

func (ws *WebServer) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   tokenCookieName,
		Value:  "",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusOK)
}

func (ws *WebServer) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth != apiKey {
			cookie, err := r.Cookie(tokenCookieName)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(cookie.Value, func(token *jwt.Token) (interface{}, error) {
				return secretKey, nil
			})
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !token.Valid {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func getUserData(token *oauth2.Token) (*UserData, error) {
	resp, err := http.Get("https://www.googleapis.com/oauth2/v2/userinfo?access_token=" + token.AccessToken)
	if err != nil {
		return nil, err
	}
	var userData UserData
	err = json.NewDecoder(resp.Body).Decode(&userData)
	if err != nil {
		return nil, err
	}
	return &userData, nil
}

func (ws *WebServer) AuthCallback(w http.ResponseWriter, r *http.Request) {

	token, err := ws.OAuthConfig.Exchange(context.Background(), r.FormValue("code"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	userData, err := getUserData(token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ownToken, err := createToken(userData.Email, userData.Name, "admin")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    ownToken,
		Path:     "/",
		MaxAge:   7 * 86400,
		SameSite: http.SameSiteStrictMode,
	})

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func getClaimsFromToken(r *http.Request) (jwt.MapClaims, error) {
	cookie, err := r.Cookie(tokenCookieName)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(cookie.Value, func(token *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

func (ws *WebServer) User(w http.ResponseWriter, r *http.Request) {
	claims, err := getClaimsFromToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	defaultHeaders(w, r, true, "0")
	w.WriteHeader(http.StatusOK)
	err = json.NewEncoder(w).Encode(claims)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type ReplaceResponse struct {
	Records    int    `json:"records"`
	Generation uint64 `json:"generation"`
}

// Replace swaps the canonical grid for an uploaded file. Every session picks
// up the new grid through the change listener.
func (ws *WebServer) Replace(w http.ResponseWriter, r *http.Request) {
	sessionId := common.HandleSessionCookie(ws.Tracking, w, r)
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := ws.Store.Replace(file); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	totalRecords.Set(float64(ws.Store.Len()))
	if ws.Tracking != nil {
		go ws.Tracking.TrackReplace(sessionId, ws.Store.Len())
	}
	defaultHeaders(w, r, true, "0")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ReplaceResponse{Records: ws.Store.Len(), Generation: ws.Store.Generation()})
}

// ExportMaster streams the canonical grid without any session's pending
// edits.
func (ws *WebServer) ExportMaster(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=UTF-8")
	w.Header().Set("Content-Disposition", `attachment; filename="grid.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := ws.Store.Export(w); err != nil {
		log.Printf("Error exporting canonical grid: %v", err)
	}
}

func (ws *WebServer) ListProjects(w http.ResponseWriter, r *http.Request) {
	if ws.Projects == nil {
		http.Error(w, "project store not configured", http.StatusNotImplemented)
		return
	}
	projects, err := ws.Projects.ListProjects(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defaultHeaders(w, r, true, "0")
	w.WriteHeader(http.StatusOK)
	err = json.NewEncoder(w).Encode(projects)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (ws *WebServer) SaveProject(w http.ResponseWriter, r *http.Request) {
	if ws.Projects == nil {
		http.Error(w, "project store not configured", http.StatusNotImplemented)
		return
	}
	name := r.PathValue("name")
	if name == "" {
		http.Error(w, "project name is required", http.StatusBadRequest)
		return
	}
	if err := ws.Projects.SaveProject(r.Context(), name, ws.Store.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// LoadProject installs a stored grid as the canonical one, like an upload
// but from Firestore.
func (ws *WebServer) LoadProject(w http.ResponseWriter, r *http.Request) {
	if ws.Projects == nil {
		http.Error(w, "project store not configured", http.StatusNotImplemented)
		return
	}
	name := r.PathValue("name")
	data, err := ws.Projects.LoadProject(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := ws.Store.Install(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	totalRecords.Set(float64(ws.Store.Len()))
	defaultHeaders(w, r, true, "0")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ReplaceResponse{Records: ws.Store.Len(), Generation: ws.Store.Generation()})
}

func (ws *WebServer) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if ws.Projects == nil {
		http.Error(w, "project store not configured", http.StatusNotImplemented)
		return
	}
	if err := ws.Projects.DeleteProject(r.Context(), r.PathValue("name")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ws *WebServer) AdminHandler() *http.ServeMux {

	srv := http.NewServeMux()
	srv.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		defaultHeaders(w, r, false, "0")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("ok"))
		if err != nil {
			log.Println("Error writing health check response")
		}
	})

	srv.HandleFunc("/login", ws.Login)
	srv.HandleFunc("/logout", ws.Logout)
	srv.HandleFunc("/user", ws.User)
	srv.HandleFunc("/auth_callback", ws.AuthCallback)

	srv.HandleFunc("POST /replace", ws.AuthMiddleware(ws.Replace))
	srv.HandleFunc("GET /export", ws.AuthMiddleware(ws.ExportMaster))

	srv.HandleFunc("GET /projects", ws.AuthMiddleware(ws.ListProjects))
	srv.HandleFunc("POST /projects/{name}", ws.AuthMiddleware(ws.SaveProject))
	srv.HandleFunc("POST /projects/{name}/load", ws.AuthMiddleware(ws.LoadProject))
	srv.HandleFunc("DELETE /projects/{name}", ws.AuthMiddleware(ws.DeleteProject))

	if ws.Auth != nil {
		srv.HandleFunc("GET /passkey/register", ws.Auth.CreateChallenge)
		srv.HandleFunc("POST /passkey/register", ws.Auth.ValidateCreateChallengeResponse)
		srv.HandleFunc("GET /passkey/login", ws.Auth.LoginChallenge)
		srv.HandleFunc("POST /passkey/login", ws.Auth.LoginChallengeResponse)
		srv.HandleFunc("GET /users", ws.AuthMiddleware(ws.Auth.ListUsers))
		srv.HandleFunc("PUT /users/{id}", ws.AuthMiddleware(ws.Auth.UpdateUser))
		srv.HandleFunc("DELETE /users/{id}", ws.AuthMiddleware(ws.Auth.DeleteUser))
	}

	return srv
}
