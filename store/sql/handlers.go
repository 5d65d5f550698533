package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func loanHandlers() repository.ModelHandlers[*loanRecord] {
	return repository.ModelHandlers[*loanRecord]{
		NewRecord: func() *loanRecord {
			return &loanRecord{}
		},
		GetID: func(record *loanRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *loanRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *loanRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func fractionalAssetHandlers() repository.ModelHandlers[*fractionalAssetRecord] {
	return repository.ModelHandlers[*fractionalAssetRecord]{
		NewRecord: func() *fractionalAssetRecord {
			return &fractionalAssetRecord{}
		},
		GetID: func(record *fractionalAssetRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *fractionalAssetRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *fractionalAssetRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func verificationRequestHandlers() repository.ModelHandlers[*verificationRequestRecord] {
	return repository.ModelHandlers[*verificationRequestRecord]{
		NewRecord: func() *verificationRequestRecord {
			return &verificationRequestRecord{}
		},
		GetID: func(record *verificationRequestRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *verificationRequestRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *verificationRequestRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func reserveDataHandlers() repository.ModelHandlers[*reserveDataRecord] {
	return repository.ModelHandlers[*reserveDataRecord]{
		NewRecord: func() *reserveDataRecord {
			return &reserveDataRecord{}
		},
		GetID: func(record *reserveDataRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.AssetID)
		},
		SetID: func(record *reserveDataRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.AssetID = id.String()
		},
		GetIdentifier: func() string {
			return "asset_id"
		},
		GetIdentifierValue: func(record *reserveDataRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.AssetID)
		},
	}
}

func engineActivityHandlers() repository.ModelHandlers[*engineActivityRecord] {
	return repository.ModelHandlers[*engineActivityRecord]{
		NewRecord: func() *engineActivityRecord {
			return &engineActivityRecord{}
		},
		GetID: func(record *engineActivityRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *engineActivityRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *engineActivityRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func callbackDeliveryHandlers() repository.ModelHandlers[*callbackDeliveryRecord] {
	return repository.ModelHandlers[*callbackDeliveryRecord]{
		NewRecord: func() *callbackDeliveryRecord {
			return &callbackDeliveryRecord{}
		},
		GetID: func(record *callbackDeliveryRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *callbackDeliveryRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *callbackDeliveryRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
