package memoria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmapValidaciones(t *testing.T) {
	fs := sistemaDePrueba(t)
	archivo := crearArchivo(t, fs, "datos.bin", patron(1, TamPagina))
	vacio := crearArchivo(t, fs, "vacio.bin", nil)
	esp := espacioDePrueba(1)
	esp.FinDatos = 0x08050000

	casos := []struct {
		nombre string
		crear  func() (int, error)
	}{
		{"direccion nula", func() (int, error) {
			return CrearRegion(esp, archivo, 3, 0)
		}},
		{"direccion sin alinear", func() (int, error) {
			return CrearRegion(esp, archivo, 3, 0x10000010)
		}},
		{"archivo vacio", func() (int, error) {
			return CrearRegion(esp, vacio, 3, 0x10000000)
		}},
		{"pegado al kernel", func() (int, error) {
			return CrearRegion(esp, archivo, 3, BaseKernel-TamPagina)
		}},
		{"dentro del segmento de datos", func() (int, error) {
			return CrearRegion(esp, archivo, 3, 0x08050000)
		}},
	}

	for _, caso := range casos {
		t.Run(caso.nombre, func(t *testing.T) {
			id, err := caso.crear()
			assert.Equal(t, -1, id)
			assert.ErrorIs(t, err, ErrMmapInvalido)
		})
	}
}

func TestMmapRechazaSolapamiento(t *testing.T) {
	fs := sistemaDePrueba(t)
	archivo := crearArchivo(t, fs, "datos.bin", patron(1, 2*TamPagina))
	esp := espacioDePrueba(1)

	id, err := CrearRegion(esp, archivo, 3, 0x10000000)
	require.NoError(t, err)
	require.Equal(t, 1, id)

	// La segunda página del rango nuevo pisa la primera del existente
	id, err = CrearRegion(esp, archivo, 3, 0x10000000-TamPagina)
	assert.Equal(t, -1, id)
	assert.ErrorIs(t, err, ErrMmapInvalido)
}

func TestMmapCreaPaginasPerezosas(t *testing.T) {
	fs := sistemaDePrueba(t)

	// Archivo de dos páginas y media
	contenido := patron(4, 2*TamPagina+TamPagina/2)
	archivo := crearArchivo(t, fs, "datos.bin", contenido)
	esp := espacioDePrueba(1)

	id, err := CrearRegion(esp, archivo, 3, 0x10000000)
	require.NoError(t, err)

	region := BuscarRegion(esp, id)
	require.NotNil(t, region)
	require.Len(t, region.Paginas, 3)

	for i, pagina := range region.Paginas {
		assert.Equal(t, ParaMmap, pagina.Proposito)
		assert.Same(t, region, pagina.Region)
		assert.Equal(t, MarcoInvalido, pagina.Marco)
		assert.Equal(t, uint32(0x10000000)+uint32(i)*TamPagina, pagina.Direccion)
		assert.Equal(t, TamPagina, pagina.BytesArchivo+pagina.BytesCero)
	}
	// La última página mapea media página de archivo
	assert.Equal(t, TamPagina/2, region.Paginas[2].BytesArchivo)

	// Los ids son crecientes por proceso
	segundo, err := CrearRegion(esp, archivo, 3, 0x20000000)
	require.NoError(t, err)
	assert.Equal(t, id+1, segundo)
}

func TestMunmapEscribeSuciasYDesarma(t *testing.T) {
	tabla, swap, metricas := entornoDePrueba(t, 4, 4)
	resolutor := NuevoResolutor(tabla, swap, metricas)
	fs := sistemaDePrueba(t)

	contenido := patron(6, 2*TamPagina+TamPagina/2)
	archivo := crearArchivo(t, fs, "datos.bin", contenido)
	esp := espacioDePrueba(1)

	id, err := CrearRegion(esp, archivo, 3, 0x10000000)
	require.NoError(t, err)
	region := BuscarRegion(esp, id)

	// Traer la página 1 por fallo y ensuciarla
	require.NoError(t, resolutor.Resolver(esp, 0x10001000, true, 0xBFFFF000))
	pagina := esp.BuscarPagina(0x10001000)
	require.NotEqual(t, MarcoInvalido, pagina.Marco)

	tabla.Datos(pagina.Marco)[0] = 0xEE
	esp.Directorio.RegistrarAcceso(0x10001000, true)

	paginasDeLaRegion := append([]*Pagina(nil), region.Paginas...)

	require.NoError(t, EliminarRegion(esp, tabla, swap, id))

	// La página sucia volvió al archivo en su offset
	enArchivo := make([]byte, TamPagina)
	lector, err := fs.Abrir("datos.bin")
	require.NoError(t, err)
	defer lector.Cerrar()
	_, err = lector.LeerEn(enArchivo, TamPagina)
	require.NoError(t, err)
	assert.Equal(t, byte(0xEE), enArchivo[0])
	assert.Equal(t, contenido[TamPagina+1:2*TamPagina], enArchivo[1:])

	// Nada de la región queda en la SPT ni en la MMU ni en los marcos
	assert.Nil(t, BuscarRegion(esp, id))
	for _, p := range paginasDeLaRegion {
		assert.Nil(t, esp.BuscarPagina(p.Direccion))
		assert.Nil(t, p.Region)
		assert.Equal(t, MarcoInvalido, esp.Directorio.ObtenerMarco(p.Direccion))
	}
	assert.Equal(t, 4, tabla.Libres())

	// El reacceso a la zona desmapeada vuelve a ser un fallo irresoluble
	err = resolutor.Resolver(esp, 0x10001000, false, 0xBFFFF000)
	assert.Error(t, err)
}

func TestMunmapRegionInexistente(t *testing.T) {
	tabla, swap, _ := entornoDePrueba(t, 2, 4)
	esp := espacioDePrueba(1)

	err := EliminarRegion(esp, tabla, swap, 99)
	assert.ErrorIs(t, err, ErrRegionInexistente)
}

func TestMunmapLimpiaNoEscribeLimpias(t *testing.T) {
	tabla, swap, metricas := entornoDePrueba(t, 4, 4)
	resolutor := NuevoResolutor(tabla, swap, metricas)
	fs := sistemaDePrueba(t)

	contenido := patron(8, TamPagina)
	archivo := crearArchivo(t, fs, "datos.bin", contenido)
	esp := espacioDePrueba(1)

	id, err := CrearRegion(esp, archivo, 3, 0x10000000)
	require.NoError(t, err)

	// Página residente pero nunca escrita
	require.NoError(t, resolutor.Resolver(esp, 0x10000000, false, 0xBFFFF000))
	require.NoError(t, EliminarRegion(esp, tabla, swap, id))

	enArchivo := make([]byte, TamPagina)
	lector, err := fs.Abrir("datos.bin")
	require.NoError(t, err)
	defer lector.Cerrar()
	_, err = lector.LeerEn(enArchivo, 0)
	require.NoError(t, err)
	assert.Equal(t, contenido, enArchivo)
}
