package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"
)

// Monitor es el servidor HTTP de inspección del kernel. No forma parte
// de la superficie de syscalls: expone salud, métricas y dumps para
// observar el sistema desde afuera.
type Monitor struct {
	IP       string
	Puerto   int
	Nombre   string
	router   *mux.Router
	server   *http.Server
	Listener net.Listener
}

// NuevoMonitor crea un monitor con el endpoint de healthcheck registrado
func NuevoMonitor(ip string, puerto int, nombre string) *Monitor {
	m := &Monitor{
		IP:     ip,
		Puerto: puerto,
		Nombre: nombre,
		router: mux.NewRouter(),
	}

	m.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "module": m.Nombre})
	}).Methods(http.MethodGet)

	return m
}

// RegistrarRuta asocia un handler JSON a una ruta GET. El handler
// devuelve el valor a serializar o un error, que se traduce a 500.
func (m *Monitor) RegistrarRuta(ruta string, handler func(vars map[string]string) (interface{}, error)) {
	m.router.HandleFunc(ruta, func(w http.ResponseWriter, r *http.Request) {
		respuesta, err := handler(mux.Vars(r))
		if err != nil {
			http.Error(w, fmt.Sprintf("Error en el manejador: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(respuesta)
	}).Methods(http.MethodGet)
}

// Iniciar arranca el servidor. Bloquea, pensado para correr en su
// propia goroutine.
func (m *Monitor) Iniciar() error {
	// Si ya tiene Listener asignado (caso tests con puerto efímero)
	if m.Listener != nil {
		slog.Info("Monitor HTTP escuchando", "módulo", m.Nombre, "dirección", m.Listener.Addr().String())
		return http.Serve(m.Listener, m.router)
	}

	address := fmt.Sprintf("%s:%d", m.IP, m.Puerto)
	m.server = &http.Server{
		Addr:    address,
		Handler: m.router,
	}

	slog.Info("Monitor HTTP escuchando", "módulo", m.Nombre, "dirección", address)
	return m.server.ListenAndServe()
}
