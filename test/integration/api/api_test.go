// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

//go:build integration

package api_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func post(path, body string) (int, map[string]any) {
	resp, err := http.Post(env.server.URL+path, "application/json", strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
	return resp.StatusCode, decoded
}

const aliceCredentials = `{"login":"alice","password":"Str0ng!Pass"}`

var _ = Describe("Auth API over PostgreSQL", func() {
	BeforeEach(func() {
		resetUsers()
	})

	Describe("registration", func() {
		It("creates a user and stores only the hash", func() {
			status, body := post("/api/register", aliceCredentials)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("message", "User created"))
			Expect(body).To(HaveKeyWithValue("user_id", BeNumerically("==", 1)))

			var hash string
			err := env.pool.QueryRow(env.ctx, "SELECT password_hash FROM users WHERE login = $1", "alice").Scan(&hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(hash).To(HavePrefix("$argon2id$"))
			Expect(hash).NotTo(ContainSubstring("Str0ng!Pass"))
		})

		It("rejects a second registration of the same login", func() {
			status, _ := post("/api/register", aliceCredentials)
			Expect(status).To(Equal(http.StatusOK))

			status, body := post("/api/register", `{"login":"alice","password":"0ther!Passw"}`)
			Expect(status).To(Equal(http.StatusConflict))
			Expect(body).To(HaveKeyWithValue("detail", "Login already exists"))
		})

		It("reports every unmet password rule", func() {
			status, body := post("/api/register", `{"login":"bob","password":"weak"}`)
			Expect(status).To(Equal(http.StatusUnprocessableEntity))
			Expect(body).To(HaveKey("detail"))

			var count int
			Expect(env.pool.QueryRow(env.ctx, "SELECT COUNT(*) FROM users").Scan(&count)).To(Succeed())
			Expect(count).To(BeZero())
		})

		It("admits exactly one of many concurrent registrations", func() {
			const workers = 10
			statuses := make(chan int, workers)
			var wg sync.WaitGroup
			for range workers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					status, _ := post("/api/register", aliceCredentials)
					statuses <- status
				}()
			}
			wg.Wait()
			close(statuses)

			counts := map[int]int{}
			for s := range statuses {
				counts[s]++
			}
			Expect(counts).To(Equal(map[int]int{http.StatusOK: 1, http.StatusConflict: workers - 1}))
		})
	})

	Describe("login", func() {
		BeforeEach(func() {
			status, _ := post("/api/register", aliceCredentials)
			Expect(status).To(Equal(http.StatusOK))
		})

		It("accepts the registered password", func() {
			status, body := post("/api/login", aliceCredentials)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("message", "Login successful"))
			Expect(body).To(HaveKeyWithValue("login", "alice"))
		})

		It("answers a wrong password and an unknown login identically", func() {
			wrongStatus, wrongBody := post("/api/login", `{"login":"alice","password":"Wr0ng!Pass"}`)
			unknownStatus, unknownBody := post("/api/login", `{"login":"nobody","password":"Str0ng!Pass"}`)

			Expect(wrongStatus).To(Equal(http.StatusUnauthorized))
			Expect(unknownStatus).To(Equal(wrongStatus))
			Expect(unknownBody).To(Equal(wrongBody))
		})

		It("treats logins as case sensitive", func() {
			status, _ := post("/api/login", `{"login":"ALICE","password":"Str0ng!Pass"}`)
			Expect(status).To(Equal(http.StatusUnauthorized))
		})

		It("counts outcomes in metrics", func() {
			before := testutil.ToFloat64(env.metrics.AuthEventsTotal.WithLabelValues("login_success", ""))
			post("/api/login", aliceCredentials)
			Expect(testutil.ToFloat64(env.metrics.AuthEventsTotal.WithLabelValues("login_success", ""))).To(Equal(before + 1))
		})
	})
})
