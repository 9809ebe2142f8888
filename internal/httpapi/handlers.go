package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/R3E-Network/dauth-gateway/internal/gatewayerr"
	"github.com/R3E-Network/dauth-gateway/internal/oauthclient"
	"github.com/R3E-Network/dauth-gateway/internal/tee"

	"github.com/R3E-Network/dauth-gateway/infrastructure/hex"
	"github.com/R3E-Network/dauth-gateway/infrastructure/httputil"
)

func (s *Server) handleExchangeKey(w http.ResponseWriter, r *http.Request) {
	var req exchangeKeyRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	clientPub, err := decodeUncompressedPubKey(req.Key)
	if err != nil {
		writeFail(w, gatewayerr.InvalidHex("key", err))
		return
	}

	result, status, err := s.bridge.KeyExchange(r.Context(), clientPub)
	if err != nil {
		writeFail(w, gatewayerr.SgxTransportFailure("exchange_key", err))
		return
	}
	if status != tee.LogicalSuccess {
		writeFail(w, gatewayerr.SgxLogicalFailure("exchange_key failed", nil))
		return
	}

	s.registry.Register(result.SessionID)

	httputil.WriteJSON(w, http.StatusOK, exchangeKeyResponse{
		Status:    "success",
		Key:       encodeUncompressedPubKey(result.EnclavePublicKey),
		SessionID: hex.EncodeToString(result.SessionID[:]),
	})
}

func (s *Server) handleAuthEmail(w http.ResponseWriter, r *http.Request) {
	var req authEmailRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := s.coordinator.AuthEmailInitiate(r.Context(), req.SessionID, req.CipherEmail); err != nil {
		writeFail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, okResponse{Status: "success"})
}

func (s *Server) handleAuthEmailConfirm(w http.ResponseWriter, r *http.Request) {
	var req authEmailConfirmRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	jwtBytes, err := s.coordinator.AuthEmailConfirm(r.Context(), req.SessionID, req.CipherCode)
	if err != nil {
		writeFail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{Status: "success", Token: string(jwtBytes)})
}

func (s *Server) handleAuthOAuth2(w http.ResponseWriter, r *http.Request) {
	var req authOAuth2Request
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	jwtBytes, err := s.coordinator.AuthOAuth2(r.Context(), req.SessionID, req.CipherCode, req.OAuthType)
	if err != nil {
		writeFail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{Status: "success", Token: string(jwtBytes)})
}

func (s *Server) handleAuthOAuthVariantB(w http.ResponseWriter, r *http.Request) {
	var req authOAuthRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	provider, ok := oauthclient.ParseProvider(req.OAuthType)
	if !ok {
		writeFail(w, gatewayerr.UnknownOAuthType(req.OAuthType))
		return
	}

	bearer := strings.TrimSpace(r.Header.Get("Authorization"))
	jwtBytes, err := s.oauthEngine.AuthOAuthVariantB(r.Context(), bearer, provider, req.Code)
	if err != nil {
		writeFail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{Status: "success", Token: string(jwtBytes)})
}

// decodeUncompressedPubKey parses the wire "04" + 128-hex-char public key
// format, stripping the 0x04 prefix (§4.1/§6/§9: the TEE itself never sees
// that prefix, only the bare 64-byte X||Y form).
func decodeUncompressedPubKey(wireHex string) ([tee.ClientPubLen]byte, error) {
	var out [tee.ClientPubLen]byte
	decoded, err := hex.DecodeString(wireHex)
	if err != nil {
		return out, err
	}
	if len(decoded) != tee.ClientPubLen+1 || decoded[0] != 0x04 {
		return out, errInvalidPubKeyEncoding
	}
	copy(out[:], decoded[1:])
	return out, nil
}

// encodeUncompressedPubKey re-adds the 0x04 prefix before hex-encoding the
// enclave's public key for the wire, the mirror image of
// decodeUncompressedPubKey.
func encodeUncompressedPubKey(pub [tee.EnclavePubLen]byte) string {
	full := make([]byte, 0, tee.EnclavePubLen+1)
	full = append(full, 0x04)
	full = append(full, pub[:]...)
	return hex.EncodeToString(full)
}

var errInvalidPubKeyEncoding = errors.New("invalid public key encoding: expected 04 + 128 hex chars")
