package usecases

import (
	"context"
	"fmt"

	"supportbridge/internal/interfaces"
)

// CredentialIssuer hands out client tokens. It holds no key; the chat
// provider client signs.
type CredentialIssuer struct {
	chat interfaces.ChatProvider
}

func NewCredentialIssuer(chat interfaces.ChatProvider) *CredentialIssuer {
	return &CredentialIssuer{chat: chat}
}

func (i *CredentialIssuer) IssueToken(ctx context.Context, customerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, err := i.chat.CreateToken(customerID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}
