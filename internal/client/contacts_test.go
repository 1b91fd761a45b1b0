package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

func TestContactsGet(t *testing.T) {
	t.Parallel()

	t.Run("returns the record", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("crm.contact.get", map[string]string{"ID": "42", "NAME": "Ivan", "UF_CRM_NOTE": "vip"})

		contacts := newTestContacts(portal, false)

		record, err := contacts.Get(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, "Ivan", record.String("NAME"))
		// Custom fields pass through untouched.
		assert.Equal(t, "vip", record.String("UF_CRM_NOTE"))

		id, err := record.ID()
		require.NoError(t, err)
		assert.Equal(t, 42, id)
	})

	t.Run("missing record fails with ErrNotFound", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respondError("crm.contact.get", "", "Not found")

		contacts := newTestContacts(portal, false)

		_, err := contacts.Get(context.Background(), 9999)
		require.ErrorIs(t, err, bitrix.ErrNotFound)
	})
}

func TestContactsList(t *testing.T) {
	t.Parallel()

	t.Run("sends filter, select, and start", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("crm.contact.list", []map[string]string{{"ID": "1"}})

		contacts := newTestContacts(portal, false)

		_, err := contacts.List(context.Background(), bitrix.ListOptions{
			Filter: bitrix.NewFilter().Equal("TYPE_ID", "CLIENT").Contains("NAME", "Iv"),
			Select: []string{"ID", "NAME"},
			Order:  bitrix.Order{"ID": bitrix.SortAscending},
		})
		require.NoError(t, err)

		body := portal.lastRequest(t, "crm.contact.list")
		assert.JSONEq(t, `{
			"filter": {"TYPE_ID": "CLIENT", "%NAME": "Iv"},
			"select": ["ID", "NAME"],
			"order": {"ID": "ASC"},
			"start": 0
		}`, string(body))
	})

	t.Run("default select requests all fields", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("crm.contact.list", []map[string]string{})

		contacts := newTestContacts(portal, false)

		_, err := contacts.List(context.Background(), bitrix.ListOptions{})
		require.NoError(t, err)

		var body struct {
			Select []string `json:"select"`
		}
		require.NoError(t, json.Unmarshal(portal.lastRequest(t, "crm.contact.list"), &body))
		assert.Equal(t, []string{"*", "UF_*"}, body.Select)
	})

	t.Run("invalid filter fails before any call", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		contacts := newTestContacts(portal, false)

		_, err := contacts.List(context.Background(), bitrix.ListOptions{
			Filter: bitrix.NewFilter().Equal("", "x"),
		})
		require.ErrorIs(t, err, bitrix.ErrInvalidFilter)
		assert.Equal(t, 0, portal.callCount("crm.contact.list"))
	})

	t.Run("limit trims the page", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)

		rows := make([]map[string]string, 50)
		for i := range rows {
			rows[i] = map[string]string{"ID": strconv.Itoa(i + 1)}
		}

		portal.respond("crm.contact.list", rows)

		contacts := newTestContacts(portal, false)

		page, err := contacts.List(context.Background(), bitrix.ListOptions{
			Page: bitrix.PageRequest{Limit: 10},
		})
		require.NoError(t, err)
		assert.Len(t, page.Result, 10)
	})
}

func TestContactsListAll(t *testing.T) {
	t.Parallel()

	portal := newFakePortal(t)
	portal.handle("crm.contact.list", func(writer http.ResponseWriter, request *http.Request) {
		var body struct {
			Start int `json:"start"`
		}
		_ = json.NewDecoder(request.Body).Decode(&body)

		page := map[string]any{"total": 70}

		switch body.Start {
		case 0:
			rows := make([]map[string]string, 50)
			for i := range rows {
				rows[i] = map[string]string{"ID": strconv.Itoa(i + 1)}
			}

			page["result"] = rows
			page["next"] = 50
		case 50:
			rows := make([]map[string]string, 20)
			for i := range rows {
				rows[i] = map[string]string{"ID": strconv.Itoa(51 + i)}
			}

			page["result"] = rows
		default:
			page["result"] = []map[string]string{}
		}

		_ = json.NewEncoder(writer).Encode(page)
	})

	contacts := newTestContacts(portal, false)

	records, err := contacts.ListAll(context.Background(), bitrix.ListOptions{
		Filter: bitrix.NewFilter().Equal("TYPE_ID", "CLIENT"),
	})
	require.NoError(t, err)
	require.Len(t, records, 70)

	// No gaps, no duplicates, server order preserved.
	for i, record := range records {
		assert.Equal(t, strconv.Itoa(i+1), record.String("ID"))
	}

	assert.Equal(t, 2, portal.callCount("crm.contact.list"))
}

func TestContactsCreate(t *testing.T) {
	t.Parallel()

	t.Run("returns the new ID", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("crm.contact.add", 77)

		contacts := newTestContacts(portal, false)

		id, err := contacts.Create(context.Background(), bitrix.Record{"NAME": "Ivan"})
		require.NoError(t, err)
		assert.Equal(t, 77, id)

		body := portal.lastRequest(t, "crm.contact.add")
		assert.JSONEq(t, `{"fields":{"NAME":"Ivan"}}`, string(body))
	})

	t.Run("string ID is accepted", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("crm.contact.add", "78")

		contacts := newTestContacts(portal, false)

		id, err := contacts.Create(context.Background(), bitrix.Record{"NAME": "Ivan"})
		require.NoError(t, err)
		assert.Equal(t, 78, id)
	})

	t.Run("unknown field fails validation before any write", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("crm.contact.fields", map[string]any{
			"NAME":      map[string]any{"type": "string"},
			"LAST_NAME": map[string]any{"type": "string"},
		})

		contacts := newTestContacts(portal, true)

		_, err := contacts.Create(context.Background(), bitrix.Record{"NAME": "Ivan", "BOGUS": "x"})
		require.ErrorIs(t, err, bitrix.ErrValidation)
		assert.Contains(t, err.Error(), "BOGUS")
		assert.Equal(t, 0, portal.callCount("crm.contact.add"))
	})
}

func TestContactsUpdate(t *testing.T) {
	t.Parallel()

	t.Run("sends id and fields", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("crm.contact.update", true)

		contacts := newTestContacts(portal, false)

		err := contacts.Update(context.Background(), 42, bitrix.Record{"NAME": "Petr"})
		require.NoError(t, err)

		body := portal.lastRequest(t, "crm.contact.update")
		assert.JSONEq(t, `{"id":42,"fields":{"NAME":"Petr"}}`, string(body))
	})

	t.Run("missing record fails with ErrNotFound", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respondError("crm.contact.update", "", "Not found")

		contacts := newTestContacts(portal, false)

		err := contacts.Update(context.Background(), 9999, bitrix.Record{"NAME": "Petr"})
		require.ErrorIs(t, err, bitrix.ErrNotFound)
	})
}

func TestContactsDelete(t *testing.T) {
	t.Parallel()

	t.Run("repeated delete of the same ID fails the second time", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)

		deleted := false
		portal.handle("crm.contact.delete", func(writer http.ResponseWriter, request *http.Request) {
			if deleted {
				writer.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(writer).Encode(map[string]string{
					"error":             "",
					"error_description": "Not found",
				})

				return
			}

			deleted = true
			_ = json.NewEncoder(writer).Encode(map[string]any{"result": true})
		})

		contacts := newTestContacts(portal, false)
		ctx := context.Background()

		require.NoError(t, contacts.Delete(ctx, 42))
		require.ErrorIs(t, contacts.Delete(ctx, 42), bitrix.ErrNotFound)
	})
}

func TestContactsFieldsCaching(t *testing.T) {
	t.Parallel()

	portal := newFakePortal(t)
	portal.respond("crm.contact.fields", map[string]any{
		"NAME": map[string]any{"type": "string"},
	})

	contacts := newTestContacts(portal, false)
	ctx := context.Background()

	first, err := contacts.Fields(ctx)
	require.NoError(t, err)
	assert.Contains(t, first, "NAME")

	_, err = contacts.Fields(ctx)
	require.NoError(t, err)

	// The second call must come from the cache.
	assert.Equal(t, 1, portal.callCount("crm.contact.fields"))
}

func TestContactsGetByIDs(t *testing.T) {
	t.Parallel()

	portal := newFakePortal(t)
	portal.respond("batch", map[string]any{
		"result": map[string]any{
			"get_1": map[string]string{"ID": "1", "NAME": "Ivan"},
			"get_3": map[string]string{"ID": "3", "NAME": "Olga"},
		},
		"result_error": map[string]any{
			"get_2": map[string]string{"error": "", "error_description": "Not found"},
		},
	})

	contacts := newTestContacts(portal, false)

	records, err := contacts.GetByIDs(context.Background(), []int{1, 2, 3})
	require.NoError(t, err)

	// One outbound call for the whole batch.
	assert.Equal(t, 1, portal.callCount("batch"))

	require.Len(t, records, 2)
	assert.Equal(t, "Ivan", records[1].String("NAME"))
	assert.Equal(t, "Olga", records[3].String("NAME"))
	assert.NotContains(t, records, 2)
}

func TestContactsCreateMany(t *testing.T) {
	t.Parallel()

	portal := newFakePortal(t)
	portal.respond("batch", map[string]any{
		"result": map[string]any{
			"cmd0": 101,
			"cmd2": 103,
		},
		"result_error": map[string]any{
			"cmd1": map[string]string{"error": "VALIDATION", "error_description": "Bad phone"},
		},
	})

	contacts := newTestContacts(portal, false)

	results := contacts.CreateMany(context.Background(), []bitrix.Record{
		{"NAME": "A"},
		{"NAME": "B", "PHONE": "bad"},
		{"NAME": "C"},
	})

	require.Len(t, results, 3)
	assert.Equal(t, 101, results[0].ID)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Equal(t, 103, results[2].ID)
	require.NoError(t, results[2].Err)
}

func TestContactsCreateManyEmpty(t *testing.T) {
	t.Parallel()

	portal := newFakePortal(t)
	contacts := newTestContacts(portal, false)

	results := contacts.CreateMany(context.Background(), nil)

	assert.Empty(t, results)
	assert.Equal(t, 0, portal.callCount("batch"))
}

func TestContactsSearch(t *testing.T) {
	t.Parallel()

	t.Run("by name uses a contains filter", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("crm.contact.list", []map[string]string{{"ID": "1", "NAME": "Ivan"}})

		contacts := newTestContacts(portal, false)

		records, err := contacts.SearchByName(context.Background(), "Iva", 5)
		require.NoError(t, err)
		require.Len(t, records, 1)

		var body struct {
			Filter map[string]any `json:"filter"`
		}
		require.NoError(t, json.Unmarshal(portal.lastRequest(t, "crm.contact.list"), &body))
		assert.Equal(t, "Iva", body.Filter["%NAME"])
	})

	t.Run("by phone uses an equality filter", func(t *testing.T) {
		t.Parallel()

		portal := newFakePortal(t)
		portal.respond("crm.contact.list", []map[string]string{})

		contacts := newTestContacts(portal, false)

		_, err := contacts.SearchByPhone(context.Background(), "+79990001122", 0)
		require.NoError(t, err)

		var body struct {
			Filter map[string]any `json:"filter"`
		}
		require.NoError(t, json.Unmarshal(portal.lastRequest(t, "crm.contact.list"), &body))
		assert.Equal(t, "+79990001122", body.Filter["PHONE"])
	})
}

func TestContactsCompanies(t *testing.T) {
	t.Parallel()

	portal := newFakePortal(t)
	portal.respond("crm.contact.company.items.get", []map[string]string{
		{"COMPANY_ID": "5", "IS_PRIMARY": "Y"},
	})

	contacts := newTestContacts(portal, false)

	companies, err := contacts.Companies(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "5", companies[0].String("COMPANY_ID"))

	body := portal.lastRequest(t, "crm.contact.company.items.get")
	assert.JSONEq(t, `{"id":42}`, string(body))
}

// Ensure the repository satisfies the public surface.
var _ bitrix.ContactsRepository = (*ContactsClient)(nil)
