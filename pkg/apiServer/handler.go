package apiServer

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/privaterag/privaterag/pkg/auth"
	"github.com/privaterag/privaterag/pkg/blobstore"
	"github.com/privaterag/privaterag/pkg/treeseal"
	"github.com/privaterag/privaterag/pkg/vault"
)

// maxUploadBytes caps document uploads. Large corpora are split by the
// caller before upload.
const maxUploadBytes = 64 << 20

type nonceRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type nonceResponse struct {
	WalletAddress string `json:"wallet_address"`
	Nonce         string `json:"nonce"`
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	var req nonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WalletAddress == "" {
		writeError(w, http.StatusBadRequest, "wallet_address is required")
		return
	}

	nonce, err := s.core.Auth.RequestChallenge(req.WalletAddress)
	if err != nil {
		s.log.Error("cannot issue challenge", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot issue challenge")
		return
	}

	writeJSON(w, http.StatusOK, nonceResponse{
		WalletAddress: strings.ToLower(req.WalletAddress),
		Nonce:         nonce,
	})
}

type verifyRequest struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
}

type verifyResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.WalletAddress == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "wallet_address and signature are required")
		return
	}

	token, err := s.core.Auth.Verify(req.WalletAddress, req.Signature)
	if err != nil {
		// One answer for every failure mode so a caller cannot probe
		// which check rejected them.
		writeError(w, http.StatusBadRequest, "invalid or expired challenge")
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.requireWallet(w, r)
	if !ok {
		return
	}

	user, err := s.core.Auth.Users().Get(wallet)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.log.Error("cannot load user", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	_, ok := s.requireWallet(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	users, err := s.core.Auth.Users().List(limit, offset)
	if err != nil {
		s.log.Error("cannot list users", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleListVaults(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.requireWallet(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	summaries, err := s.core.Vaults.List(wallet, limit, offset)
	if err != nil {
		s.log.Error("cannot list vaults", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot list vaults")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"vaults": summaries})
}

type upsertVaultRequest struct {
	DocHash      string        `json:"doc_hash"`
	Title        string        `json:"title"`
	NumPages     int           `json:"num_pages"`
	Tree         treeseal.Tree `json:"tree"`
	TocSignature string        `json:"toc_signature"`
	ContentHash  string        `json:"content_hash"`
}

func (s *Server) handleUpsertVault(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.requireWallet(w, r)
	if !ok {
		return
	}

	var req upsertVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// PATCH carries the hash in the path, POST in the body.
	if docHash := r.PathValue("docHash"); docHash != "" {
		req.DocHash = docHash
	}
	if req.DocHash == "" {
		writeError(w, http.StatusBadRequest, "doc_hash is required")
		return
	}

	v, err := s.core.Vaults.Upsert(wallet, req.DocHash, vault.UpsertRequest{
		Title:        req.Title,
		NumPages:     req.NumPages,
		Tree:         req.Tree,
		TocSignature: req.TocSignature,
		ContentHash:  req.ContentHash,
	})
	if err != nil {
		s.log.Error("cannot store vault", "doc_hash", req.DocHash, "error", err)
		writeError(w, http.StatusInternalServerError, "cannot store vault")
		return
	}

	writeJSON(w, http.StatusOK, v)
}

type vaultResponse struct {
	vault.Vault
	Tree treeseal.Tree `json:"tree,omitempty"`
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.requireWallet(w, r)
	if !ok {
		return
	}

	v, tree, err := s.core.Vaults.Get(wallet, r.PathValue("docHash"))
	if errors.Is(err, vault.ErrVaultNotFound) {
		writeError(w, http.StatusNotFound, "vault not found")
		return
	}
	if errors.Is(err, vault.ErrTreeInvalid) {
		writeError(w, http.StatusConflict, "stored tree cannot be opened")
		return
	}
	if err != nil {
		s.log.Error("cannot load vault", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot load vault")
		return
	}

	// Never hand the sealed form back over the API.
	v.SealedTree = ""
	writeJSON(w, http.StatusOK, vaultResponse{Vault: v, Tree: tree})
}

func (s *Server) handleDeleteVault(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.requireWallet(w, r)
	if !ok {
		return
	}

	err := s.core.Vaults.Delete(wallet, r.PathValue("docHash"))
	if errors.Is(err, vault.ErrVaultNotFound) {
		writeError(w, http.StatusNotFound, "vault not found")
		return
	}
	if err != nil {
		s.log.Error("cannot delete vault", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot delete vault")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type uploadResponse struct {
	ContentHash  string `json:"content_hash"`
	BlobID       string `json:"blob_id"`
	TxID         string `json:"tx_id"`
	ExplorerLink string `json:"explorer_link,omitempty"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	_, ok := s.requireWallet(w, r)
	if !ok {
		return
	}

	name, payload, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read upload")
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "empty document")
		return
	}

	receipt, err := s.core.Blobs.Store(r.Context(), payload, name)
	if err != nil {
		s.log.Error("cannot store document", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot store document")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		ContentHash:  receipt.ContentHash,
		BlobID:       receipt.BlobID.String(),
		TxID:         receipt.TxID,
		ExplorerLink: receipt.ExplorerLink,
	})
}

// readUpload accepts either a multipart form with a "file" field or a raw
// request body.
func readUpload(r *http.Request) (name string, payload []byte, err error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, err
		}
		defer file.Close()

		payload, err = io.ReadAll(file)
		if err != nil {
			return "", nil, err
		}
		return header.Filename, payload, nil
	}

	payload, err = io.ReadAll(r.Body)
	if err != nil {
		return "", nil, err
	}
	return r.URL.Query().Get("name"), payload, nil
}

func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	_, ok := s.requireWallet(w, r)
	if !ok {
		return
	}

	plaintext, err := s.core.Blobs.Retrieve(r.PathValue("contentHash"))
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if errors.Is(err, blobstore.ErrBlobCorrupted) {
		writeError(w, http.StatusConflict, "stored document cannot be opened")
		return
	}
	if err != nil {
		s.log.Error("cannot retrieve document", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot retrieve document")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(plaintext)
}
